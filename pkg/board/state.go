package board

import (
	"fmt"
	"sort"
	"strings"
)

// CreateFeature adds a feature and issues its id from NextFeatureID.
// Returns a *ValidationError if the title is blank.
func (s *State) CreateFeature(in FeatureInput) (Feature, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Feature{}, invalid("title", "feature title is required")
	}

	// A tampered counter must never hand out an id that is already taken
	if s.NextFeatureID <= s.maxFeatureID() {
		s.NextFeatureID = s.maxFeatureID() + 1
	}

	f := Feature{
		ID:          s.NextFeatureID,
		Title:       title,
		TeamID:      in.TeamID,
		SprintID:    in.SprintID,
		Assignee:    in.Assignee,
		Description: in.Description,
	}
	if strings.TrimSpace(f.Assignee) == "" {
		f.Assignee = DefaultAssignee
	}

	s.NextFeatureID++
	s.Features = append(s.Features, f)
	return f, nil
}

// UpdateFeature merges the non-nil fields of patch into the feature with the
// given id. Returns ErrNotFound if there is no such feature.
func (s *State) UpdateFeature(id int, patch FeaturePatch) (Feature, error) {
	i := s.featureIndex(id)
	if i < 0 {
		return Feature{}, fmt.Errorf("feature %d: %w", id, ErrNotFound)
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return Feature{}, invalid("title", "feature title is required")
	}

	f := s.Features[i]
	if patch.Title != nil {
		f.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.TeamID != nil {
		f.TeamID = *patch.TeamID
	}
	if patch.SprintID != nil {
		f.SprintID = *patch.SprintID
	}
	if patch.Assignee != nil {
		f.Assignee = *patch.Assignee
		if strings.TrimSpace(f.Assignee) == "" {
			f.Assignee = DefaultAssignee
		}
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}

	s.Features[i] = f
	return f, nil
}

// DeleteFeature removes a feature and every dependency touching it.
func (s *State) DeleteFeature(id int) (Cascade, error) {
	if s.featureIndex(id) < 0 {
		return Cascade{}, fmt.Errorf("feature %d: %w", id, ErrNotFound)
	}
	return s.removeFeatures(func(f Feature) bool { return f.ID == id }), nil
}

// MoveFeature relocates a feature. The target team and sprint are not checked;
// clients only offer cells that exist on their view of the board.
func (s *State) MoveFeature(id int, teamID string, sprintID int) (Feature, error) {
	i := s.featureIndex(id)
	if i < 0 {
		return Feature{}, fmt.Errorf("feature %d: %w", id, ErrNotFound)
	}
	s.Features[i].TeamID = teamID
	s.Features[i].SprintID = sprintID
	return s.Features[i], nil
}

// AddTeam appends a team. The id is always the slug of the name; any id the
// caller supplied is discarded. A missing colour class is derived from the id.
func (s *State) AddTeam(t Team) (Team, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return Team{}, invalid("name", "team name is required")
	}
	t.ID = Slugify(t.Name)
	if t.ID == "" {
		return Team{}, invalid("id", "team name %q has no usable characters", t.Name)
	}
	if s.teamIndex(t.ID) >= 0 {
		return Team{}, invalid("id", "team %q already exists", t.ID)
	}
	if t.ColorClass == "" {
		t.ColorClass = TeamColorPrefix + t.ID
	}

	s.Teams = append(s.Teams, t)
	return t, nil
}

// RemoveTeam removes a team together with its features and their dependencies.
// Returns ErrNotFound only when neither the team nor any feature placed in it
// exists.
func (s *State) RemoveTeam(id string) (Cascade, error) {
	i := s.teamIndex(id)
	cascade := s.removeFeatures(func(f Feature) bool { return f.TeamID == id })
	if i < 0 {
		if cascade.Empty() {
			return Cascade{}, fmt.Errorf("team %q: %w", id, ErrNotFound)
		}
		return cascade, nil
	}
	s.Teams = append(s.Teams[:i], s.Teams[i+1:]...)
	return cascade, nil
}

// AddSprint appends a sprint. An id <= 0 is replaced with max+1.
func (s *State) AddSprint(sp Sprint) (Sprint, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return Sprint{}, invalid("name", "sprint name is required")
	}
	if sp.ID <= 0 {
		sp.ID = s.nextSprintID()
	}
	if s.sprintIndex(sp.ID) >= 0 {
		return Sprint{}, invalid("id", "sprint %d already exists", sp.ID)
	}

	s.Sprints = append(s.Sprints, sp)
	return sp, nil
}

// RemoveSprint removes a sprint together with its features and their
// dependencies.
func (s *State) RemoveSprint(id int) (Cascade, error) {
	i := s.sprintIndex(id)
	cascade := s.removeFeatures(func(f Feature) bool { return f.SprintID == id })
	if i < 0 {
		if cascade.Empty() {
			return Cascade{}, fmt.Errorf("sprint %d: %w", id, ErrNotFound)
		}
		return cascade, nil
	}
	s.Sprints = append(s.Sprints[:i], s.Sprints[i+1:]...)
	return cascade, nil
}

func (s *State) nextSprintID() int {
	max := 0
	for _, sp := range s.Sprints {
		if sp.ID > max {
			max = sp.ID
		}
	}
	return max + 1
}

// removeFeatures drops every feature matching the predicate and then every
// dependency whose endpoint was dropped.
func (s *State) removeFeatures(match func(Feature) bool) Cascade {
	removed := make(map[int]struct{})
	kept := s.Features[:0]
	for _, f := range s.Features {
		if match(f) {
			removed[f.ID] = struct{}{}
			continue
		}
		kept = append(kept, f)
	}
	s.Features = kept

	cascade := Cascade{FeatureIDs: []int{}}
	if len(removed) == 0 {
		return cascade
	}
	for id := range removed {
		cascade.FeatureIDs = append(cascade.FeatureIDs, id)
	}
	sort.Ints(cascade.FeatureIDs)

	deps := s.Dependencies[:0]
	for _, d := range s.Dependencies {
		_, fromGone := removed[d.FromFeatureID]
		_, toGone := removed[d.ToFeatureID]
		if fromGone || toGone {
			cascade.RemovedDependencies++
			continue
		}
		deps = append(deps, d)
	}
	s.Dependencies = deps
	return cascade
}
