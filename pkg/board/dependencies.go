package board

import "fmt"

// pairKey identifies the unordered pair of endpoints of a dependency.
type pairKey struct{ lo, hi int }

func keyOf(d Dependency) pairKey {
	if d.FromFeatureID <= d.ToFeatureID {
		return pairKey{d.FromFeatureID, d.ToFeatureID}
	}
	return pairKey{d.ToFeatureID, d.FromFeatureID}
}

func normalizeDependency(d Dependency) Dependency {
	if d.Relationship == "" {
		d.Relationship = DefaultRelationship
	}
	return d
}

// AddDependency links two existing features. The unordered pair must not be
// linked already.
func (s *State) AddDependency(d Dependency) (Dependency, error) {
	if d.FromFeatureID == d.ToFeatureID {
		return Dependency{}, invalid("dependency", "feature %d cannot depend on itself", d.FromFeatureID)
	}
	if s.featureIndex(d.FromFeatureID) < 0 {
		return Dependency{}, fmt.Errorf("feature %d: %w", d.FromFeatureID, ErrNotFound)
	}
	if s.featureIndex(d.ToFeatureID) < 0 {
		return Dependency{}, fmt.Errorf("feature %d: %w", d.ToFeatureID, ErrNotFound)
	}

	key := keyOf(d)
	for _, existing := range s.Dependencies {
		if keyOf(existing) == key {
			return Dependency{}, fmt.Errorf("features %d and %d: %w", d.FromFeatureID, d.ToFeatureID, ErrDuplicateDependency)
		}
	}

	d = normalizeDependency(d)
	s.Dependencies = append(s.Dependencies, d)
	return d, nil
}

// RemoveDependency removes the dependency connecting the two features, in
// whichever direction it was drawn.
func (s *State) RemoveDependency(from, to int) error {
	key := keyOf(Dependency{FromFeatureID: from, ToFeatureID: to})
	for i, d := range s.Dependencies {
		if keyOf(d) == key {
			s.Dependencies = append(s.Dependencies[:i], s.Dependencies[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dependency %d-%d: %w", from, to, ErrNotFound)
}

// ReplaceDependencies swaps in a client-computed dependency list.
//
// Entries are normalized and filtered in order: self-links, links to unknown
// features, and links repeating an unordered pair accepted earlier in the list
// are dropped. The canonical list is returned together with a flag telling
// whether it differs from what was submitted.
func (s *State) ReplaceDependencies(list []Dependency) ([]Dependency, bool) {
	known := make(map[int]struct{}, len(s.Features))
	for _, f := range s.Features {
		known[f.ID] = struct{}{}
	}

	canonical := make([]Dependency, 0, len(list))
	seen := make(map[pairKey]struct{}, len(list))
	changed := false
	for _, d := range list {
		_, fromOK := known[d.FromFeatureID]
		_, toOK := known[d.ToFeatureID]
		key := keyOf(d)
		_, dup := seen[key]
		if d.FromFeatureID == d.ToFeatureID || !fromOK || !toOK || dup {
			changed = true
			continue
		}
		seen[key] = struct{}{}

		n := normalizeDependency(d)
		if n != d {
			changed = true
		}
		canonical = append(canonical, n)
	}

	s.Dependencies = canonical
	return append([]Dependency{}, canonical...), changed
}
