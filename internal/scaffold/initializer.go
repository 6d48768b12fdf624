// Package scaffold writes a starter parley configuration.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/parley/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Format selects the config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FileName returns the config file name for the format.
func (f Format) FileName() string {
	if f == FormatTOML {
		return "parley.toml"
	}
	return "parley.yml"
}

func (f Format) template() string {
	if f == FormatTOML {
		return "templates/parley.toml.tmpl"
	}
	return "templates/parley.yml.tmpl"
}

// Initialize writes the starter config into dir and returns its path.
// If force is true, existing config files are removed first.
func Initialize(dir string, format Format, force bool) (string, error) {
	if format != FormatYAML && format != FormatTOML {
		return "", fmt.Errorf("unsupported format: %s (must be 'yaml' or 'toml')", format)
	}

	if force {
		if err := removeExisting(dir); err != nil {
			return "", err
		}
	}

	content, err := templatesFS.ReadFile(format.template())
	if err != nil {
		return "", fmt.Errorf("failed to read %s template: %w", format.FileName(), err)
	}

	path := filepath.Join(dir, format.FileName())
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must load cleanly or every later command fails
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", format.FileName(), err)
	}

	return path, nil
}

func removeExisting(dir string) error {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("⚠️  Removing existing %s...\n", name)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
	}
	return nil
}

// PrintSuccess prints the success message with the created file
func PrintSuccess(path string) {
	fmt.Println("\n✅ Successfully initialized parley project!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", filepath.Base(path))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add '.parley/' to your .gitignore file")
	fmt.Println("  2. Adjust the team and policy sections")
	fmt.Println("  3. Run 'parley run' to start a collaborative run")
}
