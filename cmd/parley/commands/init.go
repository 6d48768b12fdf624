package commands

import (
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initTOML  bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter parley configuration",
	Long: `Write a starter configuration file with the stock team, policy and timeouts.

Creates parley.yml (or parley.toml with --toml) in the target directory.

Use --force to replace an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Replace an existing configuration file")
	initCmd.Flags().BoolVar(&initTOML, "toml", false, "Write parley.toml instead of parley.yml")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to initialize")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting(initDir); err != nil {
			return printer.Error("project already initialized", err.Error(), nil)
		}
	}

	format := scaffold.FormatYAML
	if initTOML {
		format = scaffold.FormatTOML
	}

	path, err := scaffold.Initialize(initDir, format, forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(path)
	return nil
}
