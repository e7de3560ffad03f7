package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// Store is the authoritative session map of one process.
//
// Reads take the read lock and return deep copies. Writes go through Update or
// Create, which apply under the write lock and then persist the whole map
// synchronously. Persist serializes writers so snapshots reach the backend in
// the order they were taken.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	template *board.State

	persistMu sync.Mutex
	snap      snapshot.Snapshotter

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	codes   CodeGenerator
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the collectors updated on persistence and session changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock sets the time source for session creation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCodeGenerator replaces RandomCode.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Store) { s.codes = gen }
}

// WithIDGenerator replaces the UUID session id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns an empty store persisting to snap. New sessions are seeded
// from template, or from board.Default when template is nil.
func NewStore(snap snapshot.Snapshotter, template *board.State, opts ...Option) *Store {
	if template == nil {
		template = board.Default()
	}
	s := &Store{
		sessions: make(map[string]*Session),
		template: template.Clone(),
		snap:     snap,
		now:      time.Now,
		codes:    RandomCode,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("session")
	return s
}

// Load replaces the in-memory map with the persisted one, migrating legacy
// shapes. Participants are discarded since no connection survives a restart.
//
// An unreadable or corrupt snapshot is logged and the store starts empty; only
// a cancelled context is returned as an error. Records that fail to decode are
// skipped individually. Whenever data is dropped, a backend that supports it
// keeps a copy of the original document before the next save replaces it.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.snap.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Snapshot unreadable, starting with no sessions", zap.Error(err))
		return nil
	}

	sessions := make(map[string]*Session)
	if len(data) > 0 {
		res, err := decodeDocument(data)
		if err != nil {
			s.logger.Warn("Snapshot corrupt, starting with no sessions", zap.Error(err))
			s.quarantine(ctx, data)
		} else {
			sessions = res.sessions
			for _, skipped := range res.skipped {
				s.logger.Warn("Skipping unreadable session record",
					zap.String(logging.FieldSessionID, skipped.SessionID),
					zap.Error(skipped.Err))
			}
			if len(res.skipped) > 0 {
				s.quarantine(ctx, data)
			}
			if res.migrated {
				s.logger.Info("Migrated snapshot to current schema",
					zap.Int("sessions", len(sessions)),
					zap.Int("schema_version", board.SchemaVersion))
			}
		}
	}
	for _, sess := range sessions {
		sess.Participants = ParticipantSet{}
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()

	s.metrics.SetSessions(len(sessions))
	s.logger.Info("Sessions loaded", zap.Int("sessions", len(sessions)))
	return nil
}

// quarantine hands the raw document to the backend to keep aside, if it can.
func (s *Store) quarantine(ctx context.Context, data []byte) {
	q, ok := s.snap.(snapshot.Quarantiner)
	if !ok {
		return
	}
	aside, err := q.Quarantine(ctx, data)
	if err != nil {
		s.logger.Error("Failed to quarantine snapshot", zap.Error(err))
		return
	}
	s.logger.Warn("Original snapshot kept aside", zap.String("location", aside))
}

// Create allocates a session seeded from the template and persists it.
// A *PersistenceError means the session exists in memory but was not saved.
func (s *Store) Create(ctx context.Context) (Created, error) {
	s.mu.Lock()
	code, err := uniqueCode(s.codes, s.codeInUseLocked)
	if err != nil {
		s.mu.Unlock()
		return Created{}, err
	}

	sess := &Session{
		ID:           s.newID(),
		AccessCode:   code,
		CreatedAt:    s.now().UTC(),
		Board:        s.template.Clone(),
		Participants: ParticipantSet{},
	}
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetSessions(count)
	s.logger.Info("Session created", zap.String(logging.FieldSessionID, sess.ID))

	created := Created{SessionID: sess.ID, AccessCode: sess.AccessCode}
	return created, s.Persist(ctx)
}

func (s *Store) codeInUseLocked(code string) bool {
	for _, sess := range s.sessions {
		if sess.AccessCode == code {
			return true
		}
	}
	return false
}

// FindByCode returns a copy of the session with the given access code,
// ignoring case.
func (s *Store) FindByCode(code string) (*Session, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("access code %q: %w", code, ErrSessionNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.AccessCode == code {
			return sess.clone(), nil
		}
	}
	return nil, fmt.Errorf("access code %q: %w", code, ErrSessionNotFound)
}

// FindByID returns a copy of the session.
func (s *Store) FindByID(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return sess.clone(), nil
}

// Board returns a copy of the session's board.
func (s *Store) Board(id string) (*board.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return sess.Board.Clone(), nil
}

// Exists reports whether the session is tracked.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Update applies fn to the session's board under the write lock and persists
// the result. If fn returns an error the board must be unchanged and nothing is
// persisted. A *PersistenceError means the change was applied but not saved.
func (s *Store) Update(ctx context.Context, id string, fn func(*board.State) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err := fn(sess.Board); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.Persist(ctx)
}

// Persist writes the whole session map to the snapshotter.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	data, err := encodeDocument(s.sessions)
	s.mu.RUnlock()
	if err != nil {
		return s.persistFailed(err)
	}

	if err := s.snap.Save(ctx, data); err != nil {
		return s.persistFailed(err)
	}
	return nil
}

func (s *Store) persistFailed(err error) error {
	s.metrics.PersistFailed()
	s.logger.Error("Failed to persist sessions", zap.Error(err))
	return &PersistenceError{Err: err}
}

// List returns a summary of every session, oldest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetTemplate replaces the board that seeds new sessions. Existing sessions
// are unaffected.
func (s *Store) SetTemplate(template *board.State) {
	if template == nil {
		return
	}
	s.mu.Lock()
	s.template = template.Clone()
	s.mu.Unlock()
}

// Template returns a copy of the seeding board.
func (s *Store) Template() *board.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template.Clone()
}

// MinIDPrefixLength is the shortest prefix ResolveID accepts.
const MinIDPrefixLength = 6

// ResolveID expands a session id prefix to the full id.
// A full UUID is checked for existence as-is.
func (s *Store) ResolveID(prefix string) (string, error) {
	if _, err := uuid.Parse(prefix); err == nil && len(prefix) == 36 {
		if !s.Exists(prefix) {
			return "", fmt.Errorf("session %s: %w", prefix, ErrSessionNotFound)
		}
		return prefix, nil
	}

	if len(prefix) < MinIDPrefixLength {
		return "", fmt.Errorf("session id prefix must be at least %d characters (got %d)", MinIDPrefixLength, len(prefix))
	}

	s.mu.RLock()
	var matches []string
	for id := range s.sessions {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session prefix %q: %w", prefix, ErrSessionNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Matches: matches}
	}
}

// AmbiguousError indicates several sessions matched a prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous session prefix '%s' matches %d sessions", e.Prefix, len(e.Matches))
}

// Suggestions lists up to ten matching ids for display, then "...and N more".
func (e *AmbiguousError) Suggestions() []string {
	n := len(e.Matches)
	if n > 10 {
		n = 10
	}
	out := append([]string{}, e.Matches[:n]...)
	if len(e.Matches) > 10 {
		out = append(out, fmt.Sprintf("...and %d more", len(e.Matches)-10))
	}
	return out
}
