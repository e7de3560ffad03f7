package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Schema migration
//
// Persisted boards are upgraded as generic JSON documents because legacy shapes
// do not fit the current structs. Each step moves a document from one
// schemaVersion to the next and only touches fields that are still in their old
// form, so a step applied to an already upgraded document changes nothing.
//
//	v0 → v1: "departments" become "teams", feature "dept" becomes "team"
//	v1 → v2: dependencies gain "relationship" and "additionalInfo" defaults
//	v2 → v3: short field names become the current ones (teamId, sprintId,
//	         colorClass, fromFeatureId, toFeatureId, note)
//
// After the steps a repair pass guarantees array-valued collections and a
// nextFeatureId above every issued id.

type migrationStep struct {
	to    int
	apply func(doc map[string]any)
}

var migrationSteps = []migrationStep{
	{to: 1, apply: renameDepartments},
	{to: 2, apply: backfillDependencyLabels},
	{to: 3, apply: adoptCurrentFieldNames},
}

// Decode parses a persisted board of any known shape and returns it at the
// current schema version.
func Decode(data []byte) (*State, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	Migrate(doc)
	return FromDocument(doc)
}

// DecodeDocument parses JSON into a generic document, keeping numbers exact.
func DecodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse board document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("board document is empty")
	}
	return doc, nil
}

// FromDocument converts an upgraded document into a State.
func FromDocument(doc map[string]any) (*State, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode board document: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("board document does not match schema v%d: %w", SchemaVersion, err)
	}
	return &st, nil
}

// Migrate upgrades a board document in place and reports whether anything
// changed. Running it on a current document is a no-op.
func Migrate(doc map[string]any) bool {
	version, _ := intValue(doc["schemaVersion"])

	changed := false
	for _, step := range migrationSteps {
		if version >= step.to {
			continue
		}
		step.apply(doc)
		version = step.to
		changed = true
	}
	if changed {
		doc["schemaVersion"] = SchemaVersion
	}

	if repairCollections(doc) {
		changed = true
	}
	return changed
}

func renameDepartments(doc map[string]any) {
	if depts, ok := doc["departments"].([]any); ok {
		if _, hasTeams := doc["teams"]; !hasTeams {
			teams := make([]any, 0, len(depts))
			for _, d := range depts {
				dept, ok := d.(map[string]any)
				if !ok {
					continue
				}
				if color, ok := dept["color"].(string); ok {
					dept["color"] = strings.Replace(color, "department-", TeamColorPrefix, 1)
				}
				teams = append(teams, dept)
			}
			doc["teams"] = teams
		}
	}
	delete(doc, "departments")

	for _, f := range objects(doc["features"]) {
		rename(f, "dept", "team")
	}
}

func backfillDependencyLabels(doc map[string]any) {
	for _, d := range objects(doc["dependencies"]) {
		if s, _ := d["relationship"].(string); s == "" {
			d["relationship"] = DefaultRelationship
		}
		if _, ok := d["note"]; ok {
			continue
		}
		if s, _ := d["additionalInfo"].(string); s == "" {
			d["additionalInfo"] = ""
		}
	}
}

func adoptCurrentFieldNames(doc map[string]any) {
	for _, t := range objects(doc["teams"]) {
		rename(t, "color", "colorClass")
	}
	for _, f := range objects(doc["features"]) {
		rename(f, "team", "teamId")
		rename(f, "sprint", "sprintId")
	}
	for _, d := range objects(doc["dependencies"]) {
		rename(d, "from", "fromFeatureId")
		rename(d, "to", "toFeatureId")
		rename(d, "additionalInfo", "note")
	}
}

// repairCollections makes every collection an array, fills a missing team
// colour class and lifts nextFeatureId above the highest feature id.
func repairCollections(doc map[string]any) bool {
	changed := false
	for _, key := range []string{"teams", "sprints", "features", "dependencies"} {
		if _, ok := doc[key].([]any); !ok {
			doc[key] = []any{}
			changed = true
		}
	}

	for _, t := range objects(doc["teams"]) {
		if c, _ := t["colorClass"].(string); c == "" {
			if id, ok := t["id"].(string); ok && id != "" {
				t["colorClass"] = TeamColorPrefix + id
				changed = true
			}
		}
	}

	for _, d := range objects(doc["dependencies"]) {
		if s, _ := d["relationship"].(string); s == "" {
			d["relationship"] = DefaultRelationship
			changed = true
		}
		if _, ok := d["note"].(string); !ok {
			d["note"] = ""
			changed = true
		}
	}

	max := 0
	for _, f := range objects(doc["features"]) {
		if id, ok := intValue(f["id"]); ok && id > max {
			max = id
		}
	}
	next, ok := intValue(doc["nextFeatureId"])
	if !ok || next <= max {
		doc["nextFeatureId"] = max + 1
		changed = true
	}
	return changed
}

// rename moves m[from] to m[to] unless m[to] is already set; m[from] is always
// dropped.
func rename(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
	}
	delete(m, from)
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return i, true
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
