package store

import (
	"errors"
	"fmt"
	"log"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - a single JSON array file at path (default)
//	"sqlite" - SQLite database at path
//	"memory" - In-memory (ephemeral, for testing)
func New(backend, path string, logger *log.Logger) (Store, error) {
	switch backend {
	case "json", "":
		return NewJSONFileStore(path, logger)
	case "sqlite":
		return NewSqliteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: json, sqlite, memory)", ErrUnknownBackend, backend)
	}
}
