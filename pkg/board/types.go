package board

import (
	"regexp"
	"strings"
)

// SchemaVersion is the version written into every board this package produces.
const SchemaVersion = 3

const (
	// DefaultAssignee is used when a feature is created without an assignee
	DefaultAssignee = "Unassigned"

	// DefaultRelationship is used when a dependency carries no label
	DefaultRelationship = "depends on"

	// TeamColorPrefix prefixes the CSS colour class derived from a team id
	TeamColorPrefix = "team-"
)

// Team is a row of the board grid.
type Team struct {
	ID         string `json:"id"`         // Slug of the name, unique within a board
	Name       string `json:"name"`       // Display name
	ColorClass string `json:"colorClass"` // CSS class used by the client, "team-<id>" by default
}

// Sprint is a column of the board grid.
type Sprint struct {
	ID   int    `json:"id"`   // Unique within a board, clients propose max+1
	Name string `json:"name"` // Display name
}

// Feature is a work item placed at a team×sprint coordinate.
type Feature struct {
	ID          int    `json:"id"`          // Issued from State.NextFeatureID
	Title       string `json:"title"`       // Never blank
	TeamID      string `json:"teamId"`      // References Team.ID
	SprintID    int    `json:"sprintId"`    // References Sprint.ID
	Assignee    string `json:"assignee"`    // "Unassigned" when not given
	Description string `json:"description"` // Free text, may be empty
}

// Dependency is a labelled directed link between two features.
type Dependency struct {
	FromFeatureID int    `json:"fromFeatureId"`
	ToFeatureID   int    `json:"toFeatureId"`
	Relationship  string `json:"relationship"` // e.g. "blocks", "enables"; "depends on" by default
	Note          string `json:"note"`
}

// State is the full board of one session.
type State struct {
	SchemaVersion int          `json:"schemaVersion"`
	Teams         []Team       `json:"teams"`
	Sprints       []Sprint     `json:"sprints"`
	Features      []Feature    `json:"features"`
	Dependencies  []Dependency `json:"dependencies"`
	NextFeatureID int          `json:"nextFeatureId"` // Strictly greater than any feature id ever issued
}

// FeatureInput carries the client-supplied fields of a new feature.
type FeatureInput struct {
	Title       string `json:"title"`
	TeamID      string `json:"teamId"`
	SprintID    int    `json:"sprintId"`
	Assignee    string `json:"assignee"`
	Description string `json:"description"`
}

// FeaturePatch carries a partial feature update. Nil fields are left untouched.
// Deleted set to true turns the update into a deletion.
type FeaturePatch struct {
	ID          int     `json:"id"`
	Title       *string `json:"title,omitempty"`
	TeamID      *string `json:"teamId,omitempty"`
	SprintID    *int    `json:"sprintId,omitempty"`
	Assignee    *string `json:"assignee,omitempty"`
	Description *string `json:"description,omitempty"`
	Deleted     bool    `json:"deleted,omitempty"`
}

// Move is the payload of a feature relocation.
type Move struct {
	FeatureID int    `json:"featureId"`
	TeamID    string `json:"teamId"`
	SprintID  int    `json:"sprintId"`
}

// Cascade reports what a removal took with it.
type Cascade struct {
	FeatureIDs          []int `json:"featureIds"`          // Features removed
	RemovedDependencies int   `json:"removedDependencies"` // Dependencies removed because an endpoint went away
}

// Empty reports whether the removal touched nothing beyond its target.
func (c Cascade) Empty() bool {
	return len(c.FeatureIDs) == 0 && c.RemovedDependencies == 0
}

// New returns an empty board at the current schema version.
func New() *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Teams:         []Team{},
		Sprints:       []Sprint{},
		Features:      []Feature{},
		Dependencies:  []Dependency{},
		NextFeatureID: 1,
	}
}

// Clone returns a deep copy of the board.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		SchemaVersion: s.SchemaVersion,
		Teams:         append([]Team{}, s.Teams...),
		Sprints:       append([]Sprint{}, s.Sprints...),
		Features:      append([]Feature{}, s.Features...),
		Dependencies:  append([]Dependency{}, s.Dependencies...),
		NextFeatureID: s.NextFeatureID,
	}
}

// Feature returns the feature with the given id.
func (s *State) Feature(id int) (Feature, bool) {
	if i := s.featureIndex(id); i >= 0 {
		return s.Features[i], true
	}
	return Feature{}, false
}

func (s *State) featureIndex(id int) int {
	for i := range s.Features {
		if s.Features[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) teamIndex(id string) int {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) sprintIndex(id int) int {
	for i := range s.Sprints {
		if s.Sprints[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) maxFeatureID() int {
	max := 0
	for _, f := range s.Features {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonSlug       = regexp.MustCompile(`[^a-z0-9-]`)
)

// Slugify derives a team id from a display name: lower case, whitespace runs
// become hyphens, anything outside [a-z0-9-] is dropped.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = whitespaceRun.ReplaceAllString(slug, "-")
	return nonSlug.ReplaceAllString(slug, "")
}
