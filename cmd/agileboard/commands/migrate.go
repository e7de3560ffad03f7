package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/session"
)

var (
	migrateIn  string
	migrateOut string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade a sessions document to the current schema",
	Long: `Upgrade a legacy sessions document offline.

Older documents stored participants as plain objects, lacked team color
classes and had no schema version. The server migrates them on load; this
command does the same without starting a server, for inspection or for
seeding another backend.

Examples:
  # Print the migrated document
  agileboard migrate --in data/sessions.json

  # Write it to a new file
  agileboard migrate --in old.json --out data/sessions.json`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateIn, "in", "", "Legacy sessions document to read")
	migrateCmd.Flags().StringVar(&migrateOut, "out", "", "File to write (stdout if omitted)")
	migrateCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(migrateIn)
	if err != nil {
		return printer.Error("cannot read input", err.Error(), nil)
	}

	migrated, err := session.MigrateDocument(data)
	if err != nil {
		return printer.ErrorWithContext(
			"migration failed",
			err.Error(),
			map[string]string{"Input": migrateIn},
			[]string{"The input must be a JSON object with a \"sessions\" map of session records"},
		)
	}

	if migrateOut == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(migrated))
		return err
	}
	if err := os.WriteFile(migrateOut, migrated, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", migrateOut, err)
	}
	printer.Success("Migrated %s to %s\n", migrateIn, migrateOut)
	return nil
}
