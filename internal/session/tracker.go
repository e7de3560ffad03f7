package session

import (
	"fmt"
	"sync"

	"github.com/ayodineji/Agile-Board/internal/metrics"
)

// Counts are derived from set cardinalities at the time of the call.
type Counts struct {
	Session int `json:"session"`
	Global  int `json:"global"`
}

// Departure describes a connection leaving a session.
type Departure struct {
	SessionID string
	Counts    Counts
}

// JoinResult is returned by Tracker.Join. Previous is set when the connection
// was moved out of another session. Rejoined is set when the connection was
// already a member of the requested session and nothing changed.
type JoinResult struct {
	Counts   Counts
	Previous *Departure
	Rejoined bool
}

// Tracker maintains which connection is joined to which session. Per-session
// membership lives in each Session's participant set; the tracker adds the
// global set and the reverse index. A connection is joined to at most one
// session.
type Tracker struct {
	store   *Store
	metrics *metrics.Metrics

	mu     sync.Mutex
	global map[string]struct{}
	joined map[string]string // connection id -> session id
}

// NewTracker returns a tracker over store's sessions.
func NewTracker(store *Store, m *metrics.Metrics) *Tracker {
	return &Tracker{
		store:   store,
		metrics: m,
		global:  make(map[string]struct{}),
		joined:  make(map[string]string),
	}
}

// Join adds connID to the session and to the global set, first removing it
// from any other session it was joined to.
func (t *Tracker) Join(sessionID, connID string) (JoinResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	sess, ok := t.store.sessions[sessionID]
	if !ok {
		return JoinResult{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	var result JoinResult
	prev, moved := t.joined[connID]
	result.Rejoined = moved && prev == sessionID
	moved = moved && prev != sessionID
	remaining := 0
	if moved {
		remaining = t.removeLocked(prev, connID)
	}

	if sess.Participants == nil {
		sess.Participants = ParticipantSet{}
	}
	sess.Participants[connID] = struct{}{}
	t.global[connID] = struct{}{}
	t.joined[connID] = sessionID

	if moved {
		result.Previous = &Departure{
			SessionID: prev,
			Counts:    Counts{Session: remaining, Global: len(t.global)},
		}
	}
	result.Counts = Counts{Session: len(sess.Participants), Global: len(t.global)}
	t.metrics.SetParticipants(len(t.global))
	return result, nil
}

// Leave removes connID from its session and from the global set. It reports
// false when the connection was not joined; leaving a session that has since
// disappeared still succeeds.
func (t *Tracker) Leave(connID string) (Departure, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessionID, ok := t.joined[connID]
	if !ok {
		return Departure{}, false
	}

	t.store.mu.Lock()
	remaining := t.removeLocked(sessionID, connID)
	t.store.mu.Unlock()

	delete(t.global, connID)
	delete(t.joined, connID)
	t.metrics.SetParticipants(len(t.global))

	return Departure{
		SessionID: sessionID,
		Counts:    Counts{Session: remaining, Global: len(t.global)},
	}, true
}

// removeLocked drops connID from the session's participants and returns how
// many remain. Requires t.mu and t.store.mu.
func (t *Tracker) removeLocked(sessionID, connID string) int {
	sess, ok := t.store.sessions[sessionID]
	if !ok {
		return 0
	}
	delete(sess.Participants, connID)
	return len(sess.Participants)
}

// SessionOf returns the session connID is joined to.
func (t *Tracker) SessionOf(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.joined[connID]
	return id, ok
}

// Counts returns the participant counts for a session. An unknown session has
// zero participants.
func (t *Tracker) Counts(sessionID string) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	n := 0
	if sess, ok := t.store.sessions[sessionID]; ok {
		n = len(sess.Participants)
	}
	return Counts{Session: n, Global: len(t.global)}
}

// Global returns the number of connections joined to any session.
func (t *Tracker) Global() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.global)
}
