// Package broadcast routes board events to the connections of a session.
//
// Delivery is fire-and-forget and at-most-once: an event is encoded once and
// offered to each target connection's send buffer without blocking. A full
// buffer drops the event for that connection. There is no replay; a client
// that misses events resynchronizes from the board-data it receives on join.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// Conn is a registered real-time connection.
type Conn interface {
	// ID is unique among live connections
	ID() string

	// Send queues an encoded frame without blocking. It returns false if the
	// frame was dropped.
	Send(frame []byte) bool
}

// Mirror receives a copy of every session event, e.g. to republish it for
// external observers.
type Mirror interface {
	Publish(ctx context.Context, sessionID string, ev board.Event) error
}

// Hub tracks connections and the session room each one is in.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	rooms  map[string]map[string]struct{} // session id -> connection ids
	member map[string]string              // connection id -> session id

	mirror  Mirror
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Hub.
type Option func(*Hub)

// WithMirror republishes session events to m.
func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics sets the collectors for connection and drop counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:  make(map[string]Conn),
		rooms:  make(map[string]map[string]struct{}),
		member: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger).Named("broadcast")
	return h
}

// Register adds a connection. It receives global events immediately and
// session events once assigned.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	_, existed := h.conns[c.ID()]
	h.conns[c.ID()] = c
	h.mu.Unlock()

	if !existed {
		h.metrics.ConnectionOpened()
	}
}

// Unregister removes a connection and its room membership.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	_, existed := h.conns[connID]
	delete(h.conns, connID)
	h.leaveLocked(connID)
	h.mu.Unlock()

	if existed {
		h.metrics.ConnectionClosed()
	}
}

// Assign moves a connection into a session room, leaving any previous room.
func (h *Hub) Assign(connID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(connID)
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]struct{})
		h.rooms[sessionID] = room
	}
	room[connID] = struct{}{}
	h.member[connID] = sessionID
}

// Leave removes a connection from its room; it stays registered.
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	h.leaveLocked(connID)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(connID string) {
	sessionID, ok := h.member[connID]
	if !ok {
		return
	}
	delete(h.member, connID)
	room := h.rooms[sessionID]
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

// Emit sends an event to one connection.
func (h *Hub) Emit(connID string, ev board.Event) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		h.deliver(c, ev.Name, frame)
	}
}

// ToSession sends an event to every connection in the session room except
// the one named by except (empty to include everyone), then mirrors it.
func (h *Hub) ToSession(ctx context.Context, sessionID string, ev board.Event, except string) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[sessionID]))
	for id := range h.rooms[sessionID] {
		if id == except {
			continue
		}
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, ev.Name, frame)
	}

	if h.mirror != nil {
		if err := h.mirror.Publish(ctx, sessionID, ev); err != nil {
			h.logger.Warn("Failed to mirror event",
				zap.String(logging.FieldSessionID, sessionID),
				zap.String("event", ev.Name),
				zap.Error(err))
		}
	}
}

// Global sends an event to every registered connection.
func (h *Hub) Global(ev board.Event) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, ev.Name, frame)
	}
}

// Members returns the connection ids in a session room.
func (h *Hub) Members(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[sessionID]))
	for id := range h.rooms[sessionID] {
		out = append(out, id)
	}
	return out
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) encode(ev board.Event) ([]byte, bool) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", ev.Name), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(c Conn, name string, frame []byte) {
	if c.Send(frame) {
		return
	}
	h.metrics.BroadcastDropped()
	h.logger.Debug("Dropped event for slow connection",
		zap.String(logging.FieldConnID, c.ID()),
		zap.String("event", name))
}
