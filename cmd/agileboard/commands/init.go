package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Write a starter configuration and board template",
	Long: `Write a starter configuration and board template.

Creates, in DIR or the current directory:
  • agileboard.yml - Server configuration with every default spelled out
  • board.jsonc    - The board new sessions start from

Use --force to overwrite existing files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing agileboard.yml and board.jsonc")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	paths, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		var existing *scaffold.ExistingError
		if errors.As(err, &existing) {
			return printer.Error(
				"already initialized",
				fmt.Sprintf("Found existing: %v", existing.Files),
				[]string{"Reinitialize, overwriting your configuration:\n  agileboard init --force"},
			)
		}
		return fmt.Errorf("initialization failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Initialized Agile Board in %s\n\nCreated:\n", dir)
	for _, p := range paths {
		fmt.Fprintf(out, "  ✓ %s\n", filepath.Base(p))
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit board.jsonc to set your teams and sprints")
	fmt.Fprintln(out, "  2. Run 'agileboard serve' from this directory")
	return nil
}
