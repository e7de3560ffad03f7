package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayodineji/Agile-Board/pkg/board"
)

const jsoncTemplate = `{
  // Two teams only
  "teams": [
    {"id": "web", "name": "Web"},
    {"id": "ops", "name": "Ops", "colorClass": "team-ops"}, /* trailing comma below */
  ],
  "sprints": [{"id": 1, "name": "Q1"},],
  "features": [],
  "dependencies": [],
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadTemplate(t *testing.T) {
	dir := t.TempDir()

	t.Run("jsonc with comments and trailing commas", func(t *testing.T) {
		path := filepath.Join(dir, "template.jsonc")
		writeFile(t, path, jsoncTemplate)

		st, err := ReadTemplate(path)
		require.NoError(t, err)
		require.Len(t, st.Teams, 2)
		assert.Equal(t, "team-web", st.Teams[0].ColorClass)
		assert.Equal(t, "Q1", st.Sprints[0].Name)
		assert.Equal(t, 1, st.NextFeatureID)
		assert.Equal(t, board.SchemaVersion, st.SchemaVersion)
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		path := filepath.Join(dir, "dup.jsonc")
		writeFile(t, path, `{"teams": [{"id": "a", "name": "A"}, {"id": "a", "name": "B"}]}`)

		_, err := ReadTemplate(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate team id")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadTemplate(filepath.Join(dir, "absent.jsonc"))
		assert.Error(t, err)
	})
}

func TestLoadTemplateFallsBack(t *testing.T) {
	assert.Equal(t, board.Default(), LoadTemplate("", nil))

	path := filepath.Join(t.TempDir(), "broken.jsonc")
	writeFile(t, path, `{"teams": [`)
	assert.Equal(t, board.Default(), LoadTemplate(path, nil))
}

func TestWatchTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.jsonc")
	writeFile(t, path, `{"teams": [{"id": "one", "name": "One"}]}`)

	store, _ := setupStore(t)
	store.SetTemplate(LoadTemplate(path, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchTemplate(ctx, path, store, nil) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, jsoncTemplate)

	require.Eventually(t, func() bool {
		return len(store.Template().Teams) == 2
	}, 3*time.Second, 50*time.Millisecond)

	// A broken edit keeps the last good template
	writeFile(t, path, `{"teams": [`)
	time.Sleep(2 * templateDebounce)
	assert.Len(t, store.Template().Teams, 2)
}
