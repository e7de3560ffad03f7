package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayodineji/Agile-Board/internal/broadcast"
	"github.com/ayodineji/Agile-Board/internal/config"
	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/internal/mutation"
	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/relay"
	"github.com/ayodineji/Agile-Board/internal/server"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board server",
	Long: `Run the HTTP API and the WebSocket real-time channel.

Sessions are loaded from the configured storage backend at startup and saved
after every change. SIGINT or SIGTERM shuts the server down gracefully.

Environment overrides:
  PORT                   Listen port
  AGILEBOARD_STORAGE     file, redis or sqlite
  AGILEBOARD_REDIS_URL   Redis URL for the redis backend and the relay
  AGILEBOARD_DATA_DIR    Directory for file and sqlite snapshots
  AGILEBOARD_LOG_LEVEL   debug, info, warn or error

Examples:
  # Run with defaults on port 3000
  agileboard serve

  # Run with a config file
  agileboard serve --config /etc/agileboard.yml

  # Store sessions in Redis
  AGILEBOARD_STORAGE=redis AGILEBOARD_REDIS_URL=redis://localhost:6379 agileboard serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return printer.Error("invalid logging configuration", err.Error(),
			[]string{"Valid levels: debug, info, warn, error", "Valid formats: json, console"})
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve wires every component and runs until ctx is cancelled or one of the
// long-running parts fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts := cfg.SnapshotOptions()
	snap, err := snapshot.Open(ctx, opts)
	if err != nil {
		return printer.ErrorWithContext(
			"storage unavailable",
			err.Error(),
			map[string]string{"Backend": opts.Backend, "Path": opts.Path},
			[]string{
				"Check storage.backend, storage.data_dir and storage.redis_url",
				"Use the file backend to run without external services:\n  AGILEBOARD_STORAGE=file agileboard serve",
			},
		)
	}
	defer snap.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	template := session.LoadTemplate(cfg.Template.Path, logger)
	store := session.NewStore(snap, template, session.WithLogger(logger), session.WithMetrics(m))
	if err := store.Load(ctx); err != nil {
		return err
	}

	hubOpts := []broadcast.Option{broadcast.WithLogger(logger), broadcast.WithMetrics(m)}
	if cfg.Relay.Enabled {
		rdb, err := connectRedis(ctx, cfg.Relay.RedisURL)
		if err != nil {
			return printer.ErrorWithContext(
				"relay unavailable",
				err.Error(),
				map[string]string{"Redis URL": cfg.Relay.RedisURL},
				[]string{"Start Redis or disable the relay:\n  relay:\n    enabled: false"},
			)
		}
		defer rdb.Close()

		r, err := relay.New(rdb, cfg.Storage.Namespace)
		if err != nil {
			return err
		}
		hubOpts = append(hubOpts, broadcast.WithMirror(r))
		logger.Info("Relaying session events", zap.String("namespace", cfg.Storage.Namespace))
	}
	hub := broadcast.NewHub(hubOpts...)

	tracker := session.NewTracker(store, m)
	engine := mutation.NewEngine(store, tracker, hub,
		mutation.WithLogger(logger),
		mutation.WithMetrics(m),
		mutation.WithTracerProvider(otel.GetTracerProvider()),
	)

	srv := server.New(store, hub, engine, snap,
		server.WithLogger(logger),
		server.WithGatherer(reg),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithSendBuffer(cfg.Server.SendBuffer),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr())
	})
	if cfg.Template.Watch && cfg.Template.Path != "" {
		g.Go(func() error {
			return session.WatchTemplate(gctx, cfg.Template.Path, store, logger)
		})
	}

	err = g.Wait()

	// Sessions created but never saved get one more chance
	if perr := store.Persist(context.Background()); perr != nil {
		logger.Error("Final save failed", zap.Error(perr))
	}
	logger.Info("Server stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// connectRedis opens a client for url and verifies it answers.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}
