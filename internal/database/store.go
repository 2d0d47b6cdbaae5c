package database

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Store implements store.Store on top of sqlx. Queries are written with
// "?" placeholders and rebound for the connected driver.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore wraps an open connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the write timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// DB exposes the underlying connection.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

var _ store.Store = (*Store)(nil)
