package board

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyBoard = `{
  "departments": [
    {"id": "dev", "name": "IT Devs", "color": "department-dev"},
    {"id": "qa", "name": "People Ops", "color": "department-qa"}
  ],
  "sprints": [{"id": 1, "name": "Sprint 1"}, {"id": 2, "name": "Sprint 2"}],
  "features": [
    {"id": 1, "title": "Login", "dept": "dev", "sprint": 1, "assignee": "Sarah", "description": ""},
    {"id": 2, "title": "Test plan", "dept": "qa", "sprint": 2, "assignee": "Tom", "description": "x"}
  ],
  "dependencies": [
    {"from": 1, "to": 2}
  ],
  "nextFeatureId": 3
}`

// Shape written by servers that already renamed departments but predate
// dependency labels and the current field names.
const teamsBoard = `{
  "teams": [{"id": "dev", "name": "IT Devs", "color": "team-dev"}],
  "sprints": [{"id": 1, "name": "Sprint 1"}],
  "features": [
    {"id": 7, "title": "Login", "team": "dev", "sprint": 1, "assignee": "Sarah", "description": ""},
    {"id": 9, "title": "Logout", "team": "dev", "sprint": 1, "assignee": "Sarah", "description": ""}
  ],
  "dependencies": [
    {"from": 9, "to": 7, "relationship": "blocks", "additionalInfo": "after login"}
  ]
}`

func TestDecodeLegacyDepartments(t *testing.T) {
	st, err := Decode([]byte(legacyBoard))
	require.NoError(t, err)

	want := &State{
		SchemaVersion: SchemaVersion,
		Teams: []Team{
			{ID: "dev", Name: "IT Devs", ColorClass: "team-dev"},
			{ID: "qa", Name: "People Ops", ColorClass: "team-qa"},
		},
		Sprints: []Sprint{{ID: 1, Name: "Sprint 1"}, {ID: 2, Name: "Sprint 2"}},
		Features: []Feature{
			{ID: 1, Title: "Login", TeamID: "dev", SprintID: 1, Assignee: "Sarah"},
			{ID: 2, Title: "Test plan", TeamID: "qa", SprintID: 2, Assignee: "Tom", Description: "x"},
		},
		Dependencies: []Dependency{
			{FromFeatureID: 1, ToFeatureID: 2, Relationship: DefaultRelationship},
		},
		NextFeatureID: 3,
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("migrated board mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTeamsShape(t *testing.T) {
	st, err := Decode([]byte(teamsBoard))
	require.NoError(t, err)

	assert.Equal(t, "team-dev", st.Teams[0].ColorClass)
	assert.Equal(t, "dev", st.Features[1].TeamID)
	assert.Equal(t, 1, st.Features[1].SprintID)
	assert.Equal(t, Dependency{FromFeatureID: 9, ToFeatureID: 7, Relationship: "blocks", Note: "after login"}, st.Dependencies[0])
	assert.Equal(t, 10, st.NextFeatureID, "missing counter is derived from the highest feature id")
}

func TestMigrateIsIdempotent(t *testing.T) {
	current, err := json.Marshal(Default())
	require.NoError(t, err)

	inputs := map[string][]byte{
		"legacy departments": []byte(legacyBoard),
		"teams shape":        []byte(teamsBoard),
		"current":            current,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			doc, err := DecodeDocument(input)
			require.NoError(t, err)
			Migrate(doc)
			once, err := json.Marshal(doc)
			require.NoError(t, err)

			again, err := DecodeDocument(once)
			require.NoError(t, err)
			assert.False(t, Migrate(again), "second migration must report no change")
			twice, err := json.Marshal(again)
			require.NoError(t, err)

			assert.Equal(t, string(once), string(twice))
		})
	}
}

func TestMigrateCurrentBoardIsNoop(t *testing.T) {
	raw, err := json.Marshal(Default())
	require.NoError(t, err)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.False(t, Migrate(doc))

	st, err := FromDocument(doc)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), st); diff != "" {
		t.Errorf("current board changed (-want +got):\n%s", diff)
	}
}

func TestMigrateRepairs(t *testing.T) {
	t.Run("missing collections become empty arrays", func(t *testing.T) {
		st, err := Decode([]byte(`{"schemaVersion": 3, "features": null}`))
		require.NoError(t, err)
		assert.NotNil(t, st.Teams)
		assert.NotNil(t, st.Features)
		assert.NotNil(t, st.Dependencies)
		assert.Equal(t, 1, st.NextFeatureID)
	})

	t.Run("counter at or below highest id is lifted", func(t *testing.T) {
		st, err := Decode([]byte(`{"schemaVersion": 3, "features": [{"id": 5, "title": "a"}], "nextFeatureId": 5}`))
		require.NoError(t, err)
		assert.Equal(t, 6, st.NextFeatureID)
	})

	t.Run("existing teams win over departments", func(t *testing.T) {
		st, err := Decode([]byte(`{"teams": [{"id": "a", "name": "A"}], "departments": [{"id": "b", "name": "B", "color": "department-b"}]}`))
		require.NoError(t, err)
		require.Len(t, st.Teams, 1)
		assert.Equal(t, "a", st.Teams[0].ID)
		assert.Equal(t, "team-a", st.Teams[0].ColorClass)
	})

	t.Run("malformed documents are rejected", func(t *testing.T) {
		_, err := Decode([]byte(`not json`))
		assert.Error(t, err)

		_, err = Decode([]byte(`null`))
		assert.Error(t, err)

		_, err = Decode([]byte(`{"schemaVersion": 3, "features": [{"id": "seven"}]}`))
		assert.Error(t, err)
	})
}
