package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayodineji/Agile-Board/internal/config"
)

// ExistingError reports files that init would overwrite.
type ExistingError struct {
	Files []string
}

func (e *ExistingError) Error() string {
	return fmt.Sprintf("already initialized: found %s", strings.Join(e.Files, ", "))
}

// CheckExisting returns an *ExistingError if agileboard.yml or board.jsonc
// already exist in dir.
func CheckExisting(dir string) error {
	var existing []string
	for _, name := range []string{config.DefaultPath, TemplateFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) > 0 {
		return &ExistingError{Files: existing}
	}
	return nil
}
