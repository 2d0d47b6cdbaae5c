package database

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		id                 BIGINT PRIMARY KEY,
		title              TEXT NOT NULL DEFAULT '',
		url                TEXT NOT NULL DEFAULT '',
		summary            TEXT NOT NULL DEFAULT '',
		tags               JSONB NOT NULL DEFAULT '[]',
		author_name        TEXT NOT NULL DEFAULT '',
		author_reputation  INTEGER NOT NULL DEFAULT 0,
		author_profile_url TEXT NOT NULL DEFAULT '',
		publication_date   TIMESTAMPTZ,
		view_count         INTEGER NOT NULL DEFAULT 0,
		vote_count         INTEGER NOT NULL DEFAULT 0,
		answer_count       INTEGER NOT NULL DEFAULT 0,
		revision           INTEGER NOT NULL DEFAULT 1,
		stored_at          TIMESTAMPTZ NOT NULL,
		last_updated       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_publication_date ON questions (publication_date)`,
	`CREATE TABLE IF NOT EXISTS authors (
		author_name    TEXT PRIMARY KEY,
		reputation     INTEGER NOT NULL DEFAULT 0,
		profile_url    TEXT NOT NULL DEFAULT '',
		first_seen     TIMESTAMPTZ NOT NULL,
		last_seen      TIMESTAMPTZ NOT NULL,
		question_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_authors_reputation ON authors (reputation)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		id                 INTEGER PRIMARY KEY,
		title              TEXT NOT NULL DEFAULT '',
		url                TEXT NOT NULL DEFAULT '',
		summary            TEXT NOT NULL DEFAULT '',
		tags               TEXT NOT NULL DEFAULT '[]',
		author_name        TEXT NOT NULL DEFAULT '',
		author_reputation  INTEGER NOT NULL DEFAULT 0,
		author_profile_url TEXT NOT NULL DEFAULT '',
		publication_date   TIMESTAMP,
		view_count         INTEGER NOT NULL DEFAULT 0,
		vote_count         INTEGER NOT NULL DEFAULT 0,
		answer_count       INTEGER NOT NULL DEFAULT 0,
		revision           INTEGER NOT NULL DEFAULT 1,
		stored_at          TIMESTAMP NOT NULL,
		last_updated       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_publication_date ON questions (publication_date)`,
	`CREATE TABLE IF NOT EXISTS authors (
		author_name    TEXT PRIMARY KEY,
		reputation     INTEGER NOT NULL DEFAULT 0,
		profile_url    TEXT NOT NULL DEFAULT '',
		first_seen     TIMESTAMP NOT NULL,
		last_seen      TIMESTAMP NOT NULL,
		question_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_authors_reputation ON authors (reputation)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := postgresSchema
	if s.db.DriverName() == DriverSQLite {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
