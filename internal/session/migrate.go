package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ayodineji/Agile-Board/pkg/board"
)

// document is the persisted form of the session map.
type document struct {
	SchemaVersion int                 `json:"schemaVersion"`
	Sessions      map[string]*Session `json:"sessions"`
}

// Legacy session records used short field names and stored the participant set
// under "activeUsers":
//
//	{"code", "created", "users", "activeUsers", "boardData"}
//
// alongside a top-level "activeCodes" array that duplicated the codes.
var legacyRecordFields = []struct{ from, to string }{
	{"code", "accessCode"},
	{"created", "createdAt"},
	{"boardData", "board"},
	{"activeUsers", "participants"},
}

// RecordError reports one session record that could not be decoded.
type RecordError struct {
	SessionID string
	Err       error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// decoded is the outcome of reading a persisted session map.
type decoded struct {
	sessions map[string]*Session
	migrated bool
	skipped  []*RecordError
}

// decodeDocument parses a persisted session map of any known shape. Records
// that cannot be decoded are left out and reported in skipped; only a
// document that is not a JSON object is an error.
func decodeDocument(data []byte) (decoded, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return decoded{}, fmt.Errorf("failed to parse sessions document: %w", err)
	}

	out := decoded{}
	if _, ok := doc["activeCodes"]; ok {
		delete(doc, "activeCodes")
		out.migrated = true
	}

	records, _ := doc["sessions"].(map[string]any)
	out.sessions = make(map[string]*Session, len(records))
	for _, id := range sortedKeys(records) {
		s, changed, err := decodeRecord(id, records[id])
		if err != nil {
			out.skipped = append(out.skipped, &RecordError{SessionID: id, Err: err})
			continue
		}
		if changed {
			out.migrated = true
		}
		out.sessions[id] = s
	}
	return out, nil
}

func decodeRecord(id string, raw any) (*Session, bool, error) {
	record, ok := raw.(map[string]any)
	if !ok {
		return nil, false, errors.New("record is not an object")
	}
	changed := migrateRecord(id, record)

	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-encode record: %w", err)
	}
	var s Session
	if err := json.Unmarshal(encoded, &s); err != nil {
		return nil, false, err
	}
	return &s, changed, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// migrateRecord upgrades one session record in place.
func migrateRecord(id string, record map[string]any) bool {
	changed := false
	for _, f := range legacyRecordFields {
		if _, ok := record[f.from]; !ok {
			continue
		}
		if _, exists := record[f.to]; !exists {
			record[f.to] = record[f.from]
		}
		delete(record, f.from)
		changed = true
	}
	if _, ok := record["users"]; ok {
		delete(record, "users")
		changed = true
	}
	if _, ok := record["id"].(string); !ok {
		record["id"] = id
		changed = true
	}

	// A set serialized without conversion comes back as an empty object
	if _, ok := record["participants"].([]any); !ok {
		record["participants"] = []any{}
		changed = true
	}

	boardDoc, ok := record["board"].(map[string]any)
	if !ok {
		boardDoc = map[string]any{}
		record["board"] = boardDoc
		changed = true
	}
	if board.Migrate(boardDoc) {
		changed = true
	}
	return changed
}

// encodeDocument serializes the session map in the current shape.
func encodeDocument(sessions map[string]*Session) ([]byte, error) {
	data, err := json.MarshalIndent(document{
		SchemaVersion: board.SchemaVersion,
		Sessions:      sessions,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sessions document: %w", err)
	}
	return data, nil
}

// MigrateDocument upgrades a persisted session map to the current shape
// without loading it into a store. Participants are kept as stored.
func MigrateDocument(data []byte) ([]byte, error) {
	res, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if len(res.skipped) > 0 {
		errs := make([]error, 0, len(res.skipped))
		for _, e := range res.skipped {
			errs = append(errs, e)
		}
		return nil, errors.Join(errs...)
	}
	return encodeDocument(res.sessions)
}
