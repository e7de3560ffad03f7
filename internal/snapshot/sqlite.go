package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultKeepLatest is the number of snapshots SQLite retains when unset.
const DefaultKeepLatest = 20

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS board_snapshots (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at TEXT NOT NULL,
	document BLOB NOT NULL
);
`

// SQLite keeps a short history of documents in a local database. Each save
// inserts a row and prunes all but the newest keep rows; Load returns the
// newest.
type SQLite struct {
	db   *sql.DB
	keep int
	now  func() time.Time
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(ctx context.Context, path string, keep int) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if keep <= 0 {
		keep = DefaultKeepLatest
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// A single connection serializes writers on the one file
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return &SQLite{db: db, keep: keep, now: time.Now}, nil
}

// Load returns the newest document, or (nil, nil) when the table is empty.
func (s *SQLite) Load(ctx context.Context) ([]byte, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM board_snapshots ORDER BY id DESC LIMIT 1`).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from database: %w", err)
	}
	return document, nil
}

// Save appends the document and prunes old rows in one transaction.
func (s *SQLite) Save(ctx context.Context, document []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO board_snapshots (taken_at, document) VALUES (?, ?)`,
		s.now().UTC().Format(time.RFC3339Nano), document); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM board_snapshots WHERE id NOT IN (SELECT id FROM board_snapshots ORDER BY id DESC LIMIT ?)`,
		s.keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// History lists when the retained snapshots were taken, newest first.
func (s *SQLite) History(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT taken_at FROM board_snapshots ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot timestamp %q: %w", raw, err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
