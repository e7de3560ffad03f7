package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayodineji/Agile-Board/internal/listing"
	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
	"github.com/ayodineji/Agile-Board/internal/timespec"
)

var (
	sessionsSince        string
	sessionsUntil        string
	sessionsOutputFormat string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
	Long: `Inspect the sessions held by the configured storage backend.

The backend is read directly, so a running server is not required. Sessions
created since the server last saved are not visible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long: `List stored sessions, oldest first.

Output Formats:
  default - Human-readable table
  jsonl   - One JSON summary per line

Time filters accept durations ("1h30m", "72h") counted back from now, or RFC 3339
timestamps.

Examples:
  # All sessions
  agileboard sessions list

  # Sessions created in the last day
  agileboard sessions list --since 24h

  # Session codes for scripting
  agileboard sessions list --output=jsonl | jq -r .accessCode`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Print one session's board as JSON",
	Long: `Print the full board of one session as indented JSON.

SESSION_ID may be any unique prefix of the session id, such as the eight
characters shown by 'agileboard sessions list'.

Examples:
  agileboard sessions show 0b7a4c1e`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsShow,
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsSince, "since", "", "Only sessions created at or after this time")
	sessionsListCmd.Flags().StringVar(&sessionsUntil, "until", "", "Only sessions created before this time")
	sessionsListCmd.Flags().StringVarP(&sessionsOutputFormat, "output", "o", "default", "Output format: default or jsonl")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseFormat(sessionsOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", sessionsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	now := time.Now()
	window, err := timespec.ParseRange(sessionsSince, sessionsUntil, now)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration such as --since 2h or a timestamp such as --since 2024-03-01T09:00:00Z"},
		)
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}

	summaries := listing.Filter(store.List(), window)
	return listing.Write(cmd.OutOrStdout(), summaries, format, now)
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	return showSession(cmd.OutOrStdout(), store, args[0])
}

func showSession(w io.Writer, store *session.Store, prefix string) error {
	id, err := store.ResolveID(prefix)
	if err != nil {
		var ambiguous *session.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			return printer.Error(
				"ambiguous session id",
				fmt.Sprintf("'%s' matches more than one session.", prefix),
				ambiguous.Suggestions(),
			)
		case session.IsNotFound(err):
			return printer.Error(
				"session not found",
				fmt.Sprintf("No session id starts with '%s'.", prefix),
				[]string{"List sessions:\n  agileboard sessions list"},
			)
		default:
			return printer.Error("invalid session id", err.Error(), nil)
		}
	}

	b, err := store.Board(id)
	if err != nil {
		return err
	}
	return listing.FormatBoard(w, b)
}

// openStore loads the configured backend into a read-only store.
func openStore(ctx context.Context) (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := cfg.SnapshotOptions()
	snap, err := snapshot.Open(ctx, opts)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"storage unavailable",
			err.Error(),
			map[string]string{"Backend": opts.Backend, "Path": opts.Path},
			[]string{"Check storage settings in " + configPath},
		)
	}
	defer snap.Close()

	store := session.NewStore(snap, nil)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
