package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// templateDebounce lets editors finish a save before the template is re-read.
const templateDebounce = 250 * time.Millisecond

// ReadTemplate parses a template board from a JSONC file: JSON with // and
// /* */ comments and trailing commas. Any known board shape is accepted and
// migrated.
func ReadTemplate(path string) (*board.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}

	st, err := board.Decode(jsonc.ToJSON(data))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	if err := st.Check(); err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return st, nil
}

// LoadTemplate returns the template at path, or board.Default when path is
// empty or the file cannot be used.
func LoadTemplate(path string, logger *zap.Logger) *board.State {
	if path == "" {
		return board.Default()
	}
	st, err := ReadTemplate(path)
	if err != nil {
		logging.OrNop(logger).Warn("Template unusable, seeding sessions with the built-in board",
			zap.String("path", path), zap.Error(err))
		return board.Default()
	}
	return st
}

// WatchTemplate reloads the template into store whenever the file at path
// changes, until ctx is cancelled. A file that fails to parse leaves the
// current template in place.
//
// The parent directory is watched rather than the file so that editors which
// save by renaming a new file over the old one keep triggering reloads.
func WatchTemplate(ctx context.Context, path string, store *Store, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("template")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("Watching template", zap.String("path", target))

	// Nil until a change is seen; each change restarts the wait
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(templateDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Template watcher error", zap.Error(err))

		case <-settle:
			settle = nil
			st, err := ReadTemplate(target)
			if err != nil {
				logger.Warn("Ignoring template change", zap.Error(err))
				continue
			}
			store.SetTemplate(st)
			logger.Info("Template reloaded",
				zap.Int("teams", len(st.Teams)),
				zap.Int("sprints", len(st.Sprints)),
				zap.Int("features", len(st.Features)))
		}
	}
}
