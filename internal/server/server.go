// Package server exposes the HTTP API and the WebSocket real-time channel.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/broadcast"
	"github.com/ayodineji/Agile-Board/internal/config"
	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/mutation"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// Server serves the board API and owns the WebSocket connections.
type Server struct {
	store  *session.Store
	hub    *broadcast.Hub
	engine *mutation.Engine
	snap   snapshot.Snapshotter

	allowedOrigins  []string
	sendBuffer      int
	shutdownTimeout time.Duration
	gatherer        prometheus.Gatherer
	logger          *zap.Logger
	upgrader        websocket.Upgrader

	// base is cancelled on shutdown so blocked reads stop submitting
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer sets the registry exposed on /metrics. Defaults to the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAllowedOrigins restricts CORS and WebSocket origins. Empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithSendBuffer sets the outbound frames queued per connection.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New returns a server over the given components.
func New(store *session.Store, hub *broadcast.Hub, engine *mutation.Engine, snap snapshot.Snapshotter, opts ...Option) *Server {
	s := &Server{
		store:           store,
		hub:             hub,
		engine:          engine,
		snap:            snap,
		sendBuffer:      config.DefaultSendBuffer,
		shutdownTimeout: config.DefaultShutdownTimeout,
		gatherer:        prometheus.DefaultGatherer,
		clients:         make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("server")
	s.base, s.cancel = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(CORS(s.allowedOrigins))
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.serveWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-session", s.createSession)
		r.Post("/join-session", s.joinSession)
		r.Get("/board/{sessionId}", s.getBoard)
	})

	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.allowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(s.allowedOrigins, origin)
}

// serveWS upgrades the request and runs the connection until it closes.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, s.sendBuffer, s.logger)
	if !s.track(c) {
		c.goingAway()
		return
	}
	defer s.untrack(c)

	s.hub.Register(c)
	c.logger.Info("Connection opened")

	go c.writePump()
	c.readPump(s.base, s.engine, func(ev board.Event) { s.hub.Emit(c.id, ev) })
	c.close()

	// The engine announces the departure; after shutdown it is gone
	if err := s.engine.Submit(s.base, mutation.Request{ConnID: c.id, Kind: mutation.KindDisconnect}); err != nil {
		s.engine.Drop(c.id)
	}
	c.logger.Info("Connection closed")
}

func (s *Server) track(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return false
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.wg.Done()
}

// closeClients sends a close frame to every connection and waits for their
// handlers to return.
func (s *Server) closeClients(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.goingAway()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for connections to close")
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Hijacked connections are invisible to Shutdown
	s.closeClients(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
