package storage

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Store owns the snapshot cache table. It is append-only: rows are written
// once by a successful sync, never updated, and removed only by the
// retention sweep.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle. Callers own the handle lifecycle
// unless the store was produced by Open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for diagnostics and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
