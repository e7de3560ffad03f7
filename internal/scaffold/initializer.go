// Package scaffold writes a starter configuration and board template for
// 'agileboard init'.
package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayodineji/Agile-Board/internal/config"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

//go:embed templates/*
var templatesFS embed.FS

// TemplateFile is the board template written next to the configuration.
const TemplateFile = "board.jsonc"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes agileboard.yml and board.jsonc into dir and returns the
// paths it created. With force, existing files are overwritten.
func Initialize(dir string, force bool) ([]string, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		paths = append(paths, file.Path)
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}
	return paths, nil
}

// getTemplateFiles renders the configuration and a board template holding
// the built-in default board.
func getTemplateFiles(dir string) ([]FileInfo, error) {
	configYml, err := templatesFS.ReadFile("templates/agileboard.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read agileboard.yml template: %w", err)
	}

	header, err := templatesFS.ReadFile("templates/board.jsonc.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read board.jsonc template: %w", err)
	}
	body, err := json.MarshalIndent(board.Default(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode default board: %w", err)
	}
	boardJSONC := append(append(header, body...), '\n')

	return []FileInfo{
		{Path: filepath.Join(dir, config.DefaultPath), Content: configYml, Permissions: 0o644},
		{Path: filepath.Join(dir, TemplateFile), Content: boardJSONC, Permissions: 0o644},
	}, nil
}

// validateCreatedFiles loads both files the way the server will
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}
	if _, err := session.ReadTemplate(filepath.Join(dir, TemplateFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", TemplateFile, err)
	}
	return nil
}
