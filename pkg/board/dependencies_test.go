package board

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependency(t *testing.T) {
	t.Run("defaults the relationship", func(t *testing.T) {
		st := Default()
		d, err := st.AddDependency(Dependency{FromFeatureID: 3, ToFeatureID: 7})
		require.NoError(t, err)
		assert.Equal(t, DefaultRelationship, d.Relationship)
		assert.Contains(t, st.Dependencies, d)
	})

	t.Run("pair already linked in the other direction", func(t *testing.T) {
		st := Default()
		before := len(st.Dependencies)

		_, err := st.AddDependency(Dependency{FromFeatureID: 4, ToFeatureID: 1, Relationship: "blocks"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicateDependency))
		assert.Len(t, st.Dependencies, before)
	})

	t.Run("self link", func(t *testing.T) {
		st := Default()
		_, err := st.AddDependency(Dependency{FromFeatureID: 2, ToFeatureID: 2})
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		st := Default()
		_, err := st.AddDependency(Dependency{FromFeatureID: 2, ToFeatureID: 99})
		assert.True(t, IsNotFound(err))
	})
}

func TestRemoveDependency(t *testing.T) {
	st := Default()

	// Stored as 10 -> 4, removed by the reversed pair
	require.NoError(t, st.RemoveDependency(4, 10))
	for _, d := range st.Dependencies {
		assert.NotEqual(t, pairKey{4, 10}, keyOf(d))
	}

	err := st.RemoveDependency(4, 10)
	assert.True(t, IsNotFound(err))
}

func TestReplaceDependencies(t *testing.T) {
	t.Run("canonical list is accepted unchanged", func(t *testing.T) {
		st := Default()
		submitted := Default().Dependencies[:2]

		got, changed := st.ReplaceDependencies(submitted)
		assert.False(t, changed)
		if diff := cmp.Diff(submitted, got); diff != "" {
			t.Errorf("canonical list mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, got, st.Dependencies)
	})

	t.Run("duplicates, self links and dangling links are dropped", func(t *testing.T) {
		st := Default()
		submitted := []Dependency{
			{FromFeatureID: 1, ToFeatureID: 4, Relationship: "prerequisite for"},
			{FromFeatureID: 4, ToFeatureID: 1, Relationship: "blocks"},
			{FromFeatureID: 5, ToFeatureID: 5},
			{FromFeatureID: 5, ToFeatureID: 404},
			{FromFeatureID: 2, ToFeatureID: 3},
		}

		got, changed := st.ReplaceDependencies(submitted)
		assert.True(t, changed)

		want := []Dependency{
			{FromFeatureID: 1, ToFeatureID: 4, Relationship: "prerequisite for"},
			{FromFeatureID: 2, ToFeatureID: 3, Relationship: DefaultRelationship},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("canonical list mismatch (-want +got):\n%s", diff)
		}
		require.NoError(t, st.Check())
	})

	t.Run("empty list clears dependencies", func(t *testing.T) {
		st := Default()
		got, changed := st.ReplaceDependencies(nil)
		assert.False(t, changed)
		assert.Empty(t, got)
		assert.NotNil(t, st.Dependencies)
		assert.Empty(t, st.Dependencies)
	})

	t.Run("returned list does not alias the board", func(t *testing.T) {
		st := Default()
		got, _ := st.ReplaceDependencies(Default().Dependencies)
		got[0].Note = "edited"
		assert.NotEqual(t, "edited", st.Dependencies[0].Note)
	})
}
