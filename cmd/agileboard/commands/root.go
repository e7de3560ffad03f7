package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayodineji/Agile-Board/internal/config"
	"github.com/ayodineji/Agile-Board/internal/printer"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agileboard",
	Short: "Agile Board - collaborative sprint planning server",
	Long: `Agile Board hosts shared planning boards: teams as rows, sprints as
columns, features placed on the grid and dependencies drawn between them.

Participants join a session with a six-character access code and every change
is applied once on the server and broadcast to everyone in the session.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Unknown flags are an error, not silently ignored
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	// Errors are printed by the printer package, not by cobra
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
}

// loadConfig reads the configuration named by --config. A missing file
// yields the defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{
				fmt.Sprintf("Fix the file and retry:\n  agileboard serve --config %s", configPath),
				"Remove the file to run with defaults",
			},
		)
	}
	return cfg, nil
}
