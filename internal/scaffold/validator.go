package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var configNames = []string{"parley.yml", "parley.yaml", "parley.toml"}

// CheckExisting returns an error if dir already holds a parley config file.
func CheckExisting(dir string) error {
	var existing []string
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existing = append(existing, name)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'parley init --force' to reinitialize (this will overwrite existing configuration)",
		strings.Join(existing, ", "))
}
