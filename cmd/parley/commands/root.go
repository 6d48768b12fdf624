package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/printer"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley - policy-governed multi-agent collaboration",
	Long: `parley runs a team of role-based agents (Researcher, Writer, Critic,
Integrator) through a planning, research, writing and review workflow.

Every message between agents passes a directed communication policy; blocked
messages are recorded rather than raised. Runs execute in-process or as a
durable Temporal workflow.`,
	// Show help instead of silently succeeding on a bare invocation
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the parley version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "parley %s\n", rootCmd.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $PARLEY_CONFIG, ./parley.yml or ./parley.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
}

// loadConfig resolves, loads and validates the configuration. Without a config
// file the defaults are used.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var cfg *config.Config
	path := config.Locate(configPath, wd, os.Getenv)
	if path == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, printer.ErrorWithContext(
				"invalid configuration",
				err.Error(),
				map[string]string{"file": path},
				[]string{"Fix the file or regenerate it:\n  parley init --force"},
			)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, printer.Error("invalid configuration", err.Error(), nil)
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Logs go to stderr as text unless configured.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	logger, closer, err := logging.New(cfg.LoggingConfig("text"))
	if err != nil {
		return nil, nil, err
	}
	return logger, closer, nil
}
