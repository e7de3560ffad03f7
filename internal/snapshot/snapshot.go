// Package snapshot persists the serialized session map.
//
// A Snapshotter stores one opaque document: the whole session map as JSON.
// Backends only move bytes; encoding and schema migration live in the session
// package. Every backend reports missing data as (nil, nil) so a fresh
// deployment starts empty without special-casing.
package snapshot

import (
	"context"
	"fmt"
	"io"
)

// Snapshotter loads and saves the serialized session map.
type Snapshotter interface {
	io.Closer

	// Load returns the most recent document, or (nil, nil) if none exists.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored document.
	Save(ctx context.Context, document []byte) error

	// Ping verifies the backend is reachable. Used by health checks.
	Ping(ctx context.Context) error
}

// Quarantiner is implemented by backends that can keep a copy of a document
// the session store could not fully read, before the next Save replaces it.
type Quarantiner interface {
	// Quarantine stores document aside and returns where it was put.
	Quarantine(ctx context.Context, document []byte) (string, error)
}

// Storage backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// SessionsKey returns the Redis key holding the session map.
// Pattern: agileboard:{namespace}:sessions
func SessionsKey(namespace string) string {
	return fmt.Sprintf("agileboard:%s:sessions", namespace)
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend    string
	Path       string // file: document path; sqlite: database path
	RedisURL   string
	Namespace  string
	KeepLatest int // sqlite: snapshots retained after each save
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Snapshotter, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFile(opts.Path)
	case BackendRedis:
		return NewRedisFromURL(ctx, opts.RedisURL, opts.Namespace)
	case BackendSQLite:
		return NewSQLite(ctx, opts.Path, opts.KeepLatest)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
