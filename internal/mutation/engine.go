// Package mutation applies inbound real-time requests to session boards and
// fans the results out to connections.
//
// All requests of a process flow through one Engine goroutine. Each request is
// validated, applied, persisted and broadcast before the next one starts, so
// two mutations never interleave on a board.
package mutation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/broadcast"
	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

const tracerName = "github.com/ayodineji/Agile-Board/internal/mutation"

// DefaultInboxSize is the number of requests Submit can queue ahead of Run.
const DefaultInboxSize = 256

// ErrStopped is returned by Submit once Run has returned.
var ErrStopped = errors.New("mutation engine stopped")

type handlerFunc func(ctx context.Context, req Request) (outcome string, err error)

// Engine serializes requests against the session store.
type Engine struct {
	store   *session.Store
	tracker *session.Tracker
	hub     *broadcast.Hub

	handlers map[Kind]handlerFunc
	inbox    chan Request
	stopped  chan struct{}

	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracerProvider sets the provider spans are created from. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithInboxSize sets the Submit queue length.
func WithInboxSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.inbox = make(chan Request, n)
		}
	}
}

// NewEngine wires an engine to its collaborators.
func NewEngine(store *session.Store, tracker *session.Tracker, hub *broadcast.Hub, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		tracker: tracker,
		hub:     hub,
		inbox:   make(chan Request, DefaultInboxSize),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).Named("mutation")
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.handlers = e.dispatchTable()
	return e
}

// Run processes submitted requests until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Mutation engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Mutation engine shutting down")
			close(e.stopped)
			e.drain()
			return nil
		case req := <-e.inbox:
			// Requests run to completion even if shutdown begins meanwhile
			e.Process(context.WithoutCancel(ctx), req)
		}
	}
}

// Submit queues a request for Run. It blocks while the inbox is full.
func (e *Engine) Submit(ctx context.Context, req Request) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}

	select {
	case e.inbox <- req:
		select {
		case <-e.stopped:
			// Run may have drained the inbox before this request landed
			e.drain()
		default:
		}
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drop releases a connection without announcing its departure. It is for
// connections that close after Run has returned, so the participant sets left
// behind for the final save stay accurate. Safe to call concurrently.
func (e *Engine) Drop(connID string) {
	e.tracker.Leave(connID)
	e.hub.Unregister(connID)
}

// drain empties the inbox once Run has stopped. Mutations are discarded;
// departures still release their connection.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.inbox:
			switch req.Kind {
			case KindDisconnect:
				e.Drop(req.ConnID)
			case KindLeaveSession:
				e.tracker.Leave(req.ConnID)
				e.hub.Leave(req.ConnID)
			default:
				e.logger.Debug("Discarding request queued at shutdown",
					zap.String(logging.FieldKind, string(req.Kind)),
					zap.String(logging.FieldConnID, req.ConnID))
			}
		default:
			return
		}
	}
}

// Process handles one request synchronously. It must not run concurrently
// with Run or with itself.
func (e *Engine) Process(ctx context.Context, req Request) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "mutation "+string(req.Kind),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("agileboard.kind", string(req.Kind)),
			attribute.String("agileboard.conn_id", req.ConnID),
		))
	defer span.End()

	outcome, err := e.dispatch(ctx, req)
	span.SetAttributes(attribute.String("agileboard.outcome", outcome))

	log := e.logger.With(
		zap.String(logging.FieldKind, string(req.Kind)),
		zap.String(logging.FieldConnID, req.ConnID))
	switch outcome {
	case metrics.OutcomeRejected:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Info("Mutation rejected", zap.Error(err))
		e.hub.Emit(req.ConnID, board.NewEvent(board.EventError, board.ErrorPayload{
			Kind:    string(req.Kind),
			Message: err.Error(),
		}))
	case metrics.OutcomeIgnored:
		log.Debug("Mutation ignored", zap.Error(err))
	default:
		log.Debug("Mutation applied", zap.Duration("latency", time.Since(start)))
	}

	e.metrics.ObserveMutation(string(req.Kind), outcome, time.Since(start).Seconds())
}

func (e *Engine) dispatch(ctx context.Context, req Request) (string, error) {
	h, ok := e.handlers[req.Kind]
	if !ok {
		return metrics.OutcomeRejected, &PayloadError{Kind: req.Kind, Err: errors.New("unknown request kind")}
	}

	outcome, err := h(ctx, req)
	if err == nil {
		return outcome, nil
	}
	if session.IsNotFound(err) && req.Kind != KindJoinSession {
		// The connection's session is gone; it resyncs on its next join
		return metrics.OutcomeIgnored, err
	}
	if IsRejection(err) {
		return metrics.OutcomeRejected, err
	}
	return metrics.OutcomeIgnored, err
}

// IsRejection reports whether err should be reported back to the submitter.
func IsRejection(err error) bool {
	return board.IsValidation(err) ||
		board.IsNotFound(err) ||
		errors.Is(err, board.ErrDuplicateDependency) ||
		session.IsNotFound(err) ||
		IsPayload(err)
}
