package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/relay"
	"github.com/ayodineji/Agile-Board/internal/watch"
)

var (
	watchSessionID    string
	watchRedisURL     string
	watchNamespace    string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream a session's live events",
	Long: `Stream the events of one session as the server broadcasts them.

Requires a server running with the relay enabled. Events are delivered at most
once and only while watching; nothing is replayed.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch a session using the relay settings from the config file
  agileboard watch --session 0b7a4c1e-5f7e-4c57-9d0e-1a2b3c4d5e6f

  # Watch through a specific Redis
  agileboard watch --session <id> --redis-url redis://localhost:6379

  # Export events as JSON
  agileboard watch --session <id> --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSessionID, "session", "s", "", "Session id to watch")
	watchCmd.Flags().StringVar(&watchRedisURL, "redis-url", "", "Relay Redis URL (defaults to the configured relay)")
	watchCmd.Flags().StringVar(&watchNamespace, "namespace", "", "Relay namespace (defaults to the configured namespace)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	redisURL := watchRedisURL
	if redisURL == "" {
		redisURL = cfg.Relay.RedisURL
	}
	namespace := watchNamespace
	if namespace == "" {
		namespace = cfg.Storage.Namespace
	}
	if redisURL == "" {
		return printer.Error(
			"no relay configured",
			"The relay Redis URL is not set in the configuration.",
			[]string{
				"Pass it explicitly:\n  agileboard watch --session <id> --redis-url redis://localhost:6379",
				"Or set relay.redis_url in " + configPath,
			},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := connectRedis(ctx, redisURL)
	if err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			err.Error(),
			map[string]string{"Redis URL": redisURL},
			[]string{"Check that Redis is running and reachable"},
		)
	}
	defer rdb.Close()

	r, err := relay.New(rdb, namespace)
	if err != nil {
		return err
	}
	return streamSession(ctx, r, watchSessionID, outputFormat, cmd.OutOrStdout())
}

func streamSession(ctx context.Context, r *relay.Relay, sessionID string, format watch.OutputFormat, w io.Writer) error {
	sub, err := r.Subscribe(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session %s: %w", sessionID, err)
	}
	defer sub.Close()

	if format == watch.OutputFormatDefault {
		printer.Muted(w, "Watching session %s (Ctrl+C to stop)\n", sessionID)
	}
	return watch.StreamEvents(ctx, sub, format, w)
}
