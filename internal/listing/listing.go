// Package listing renders stored sessions for the sessions command.
package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/internal/timespec"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// OutputFormat specifies how to format the session list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with short ids and relative ages
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete summaries as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates an --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputFormatDefault, OutputFormatJSONL:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Filter keeps the summaries created inside window, preserving order.
func Filter(summaries []session.Summary, window timespec.Range) []session.Summary {
	out := make([]session.Summary, 0, len(summaries))
	for _, s := range summaries {
		if window.Contains(s.CreatedAt) {
			out = append(out, s)
		}
	}
	return out
}

// Write renders summaries in the requested format.
func Write(w io.Writer, summaries []session.Summary, format OutputFormat, now time.Time) error {
	switch format {
	case OutputFormatDefault:
		FormatTable(w, summaries, now)
		return nil
	case OutputFormatJSONL:
		if err := FormatJSONL(w, summaries); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// FormatTable writes summaries as a table with columns ID, CODE, AGE, USERS,
// TEAMS, SPRINTS, FEATURES and DEPS. Returns the number of rows written.
func FormatTable(w io.Writer, summaries []session.Summary, now time.Time) int {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return 0
	}

	fmt.Fprintf(w, "%-10s %-8s %-8s %-6s %-6s %-8s %-9s %s\n",
		"ID", "CODE", "AGE", "USERS", "TEAMS", "SPRINTS", "FEATURES", "DEPS")
	fmt.Fprintf(w, "%-10s %-8s %-8s %-6s %-6s %-8s %-9s %s\n",
		"----------", "--------", "--------", "------", "------", "--------", "---------", "----")

	for _, s := range summaries {
		fmt.Fprintf(w, "%-10s %-8s %-8s %-6d %-6d %-8d %-9d %d\n",
			formatID(s.ID),
			s.AccessCode,
			formatAge(s.CreatedAt, now),
			s.Participants,
			s.Teams,
			s.Sprints,
			s.Features,
			s.Dependencies,
		)
	}

	noun := "session"
	if len(summaries) != 1 {
		noun = "sessions"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(summaries), noun)
	return len(summaries)
}

// FormatJSONL writes one compact JSON summary per line, ready for jq.
func FormatJSONL(w io.Writer, summaries []session.Summary) error {
	for _, s := range summaries {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal session summary: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatBoard writes a board as indented JSON.
func FormatBoard(w io.Writer, b *board.State) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write board: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates a session id to 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders how long ago t was, e.g. "2m ago". A zero time is "-".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
