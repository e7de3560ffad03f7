// Package watch renders the relayed events of live sessions for the watch
// command.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ayodineji/Agile-Board/internal/printer"
	"github.com/ayodineji/Agile-Board/internal/relay"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault is one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is one relay message per line
	OutputFormatJSON OutputFormat = "json"
)

// Source yields relayed events. *relay.Subscription implements it.
type Source interface {
	Events() <-chan *relay.Message
	Errors() <-chan error
}

type formatter interface {
	Format(m *relay.Message) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// StreamEvents writes every event from src until ctx is cancelled or src is
// exhausted. Malformed messages are reported as warnings and skipped.
func StreamEvents(ctx context.Context, src Source, format OutputFormat, w io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.Format(m); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			printer.Warning("%v\n", err)
		}
	}
}

type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) Format(m *relay.Message) error {
	return f.encoder.Encode(m)
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(m *relay.Message) error {
	ts := m.SentAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := fmt.Fprintf(f.writer, "[%s] %s (session %s)\n",
		ts.Local().Format("15:04:05"), describe(m), shortID(m.SessionID))
	return err
}

// describe renders one event as a short sentence. Unknown events fall back
// to their name and raw payload.
func describe(m *relay.Message) string {
	switch m.Event {
	case board.EventFeatureCreated, board.EventFeatureUpdated:
		var f board.Feature
		if json.Unmarshal(m.Data, &f) != nil {
			break
		}
		verb := "✨ Feature created"
		if m.Event == board.EventFeatureUpdated {
			verb = "✏️  Feature updated"
		}
		return fmt.Sprintf("%s: #%d %q in %s / sprint %d, assignee=%s", verb, f.ID, f.Title, f.TeamID, f.SprintID, f.Assignee)

	case board.EventFeatureMoved:
		var mv board.Move
		if json.Unmarshal(m.Data, &mv) != nil {
			break
		}
		return fmt.Sprintf("➡️  Feature moved: #%d to %s / sprint %d", mv.FeatureID, mv.TeamID, mv.SprintID)

	case board.EventFeatureDeleted:
		var ref board.FeatureRef
		if json.Unmarshal(m.Data, &ref) != nil {
			break
		}
		return fmt.Sprintf("🗑️  Feature deleted: #%d", ref.ID)

	case board.EventDependenciesUpdated:
		var deps []board.Dependency
		if json.Unmarshal(m.Data, &deps) != nil {
			break
		}
		return fmt.Sprintf("🔗 Dependencies updated: %d link(s)", len(deps))

	case board.EventTeamAdded:
		var t board.Team
		if json.Unmarshal(m.Data, &t) != nil {
			break
		}
		return fmt.Sprintf("👥 Team added: %s (%s)", t.Name, t.ID)

	case board.EventTeamRemoved:
		var id string
		if json.Unmarshal(m.Data, &id) != nil {
			break
		}
		return fmt.Sprintf("👥 Team removed: %s", id)

	case board.EventSprintAdded:
		var sp board.Sprint
		if json.Unmarshal(m.Data, &sp) != nil {
			break
		}
		return fmt.Sprintf("🗓️  Sprint added: %s (%d)", sp.Name, sp.ID)

	case board.EventSprintRemoved:
		var id int
		if json.Unmarshal(m.Data, &id) != nil {
			break
		}
		return fmt.Sprintf("🗓️  Sprint removed: %d", id)

	case board.EventUserJoined, board.EventUserLeft:
		var u board.UserRef
		if json.Unmarshal(m.Data, &u) != nil {
			break
		}
		if m.Event == board.EventUserJoined {
			return fmt.Sprintf("👋 Participant joined: %s", shortID(u.UserID))
		}
		return fmt.Sprintf("👋 Participant left: %s", shortID(u.UserID))

	case board.EventParticipantCount:
		return fmt.Sprintf("👤 Participants: %s", strings.TrimSpace(string(m.Data)))
	}

	return fmt.Sprintf("%s %s", m.Event, strings.TrimSpace(string(m.Data)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
