// Package session owns the sessions of a server process: their boards, access
// codes and joined participants, and the snapshot they are persisted to.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayodineji/Agile-Board/pkg/board"
)

// ErrSessionNotFound is returned when no session matches an id or access code.
var ErrSessionNotFound = errors.New("session not found")

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// Session is one isolated board shared by the connections that joined it.
type Session struct {
	ID           string         `json:"id"`
	AccessCode   string         `json:"accessCode"`
	CreatedAt    time.Time      `json:"createdAt"`
	Board        *board.State   `json:"board"`
	Participants ParticipantSet `json:"participants"`
}

// clone returns a deep copy safe to hand out of the store.
func (s *Session) clone() *Session {
	return &Session{
		ID:           s.ID,
		AccessCode:   s.AccessCode,
		CreatedAt:    s.CreatedAt,
		Board:        s.Board.Clone(),
		Participants: s.Participants.clone(),
	}
}

// Created is returned by Store.Create.
type Created struct {
	SessionID  string `json:"sessionId"`
	AccessCode string `json:"accessCode"`
}

// Summary describes a session for listings.
type Summary struct {
	ID           string    `json:"id"`
	AccessCode   string    `json:"accessCode"`
	CreatedAt    time.Time `json:"createdAt"`
	Participants int       `json:"participants"`
	Teams        int       `json:"teams"`
	Sprints      int       `json:"sprints"`
	Features     int       `json:"features"`
	Dependencies int       `json:"dependencies"`
}

func (s *Session) summary() Summary {
	return Summary{
		ID:           s.ID,
		AccessCode:   s.AccessCode,
		CreatedAt:    s.CreatedAt,
		Participants: len(s.Participants),
		Teams:        len(s.Board.Teams),
		Sprints:      len(s.Board.Sprints),
		Features:     len(s.Board.Features),
		Dependencies: len(s.Board.Dependencies),
	}
}

// ParticipantSet holds connection ids. It is a set in memory and a sorted
// array in JSON.
type ParticipantSet map[string]struct{}

// Sorted returns the members in ascending order.
func (p ParticipantSet) Sorted() []string {
	out := make([]string, 0, len(p))
	for id := range p {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p ParticipantSet) clone() ParticipantSet {
	out := make(ParticipantSet, len(p))
	for id := range p {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (p ParticipantSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Sorted())
}

// UnmarshalJSON accepts an array of ids or null.
func (p *ParticipantSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("participants must be an array of connection ids: %w", err)
	}
	set := make(ParticipantSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*p = set
	return nil
}

// PersistenceError reports a snapshot write that failed after the change it
// was recording had already been applied in memory.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist sessions: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is a *PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
