package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// authorSelectColumns lists columns for SELECT queries on authors.
const authorSelectColumns = `author_name, reputation, profile_url, first_seen, last_seen, question_count`

// UpsertAuthor creates the author with question_count 1 or refreshes the
// latest values and increments question_count, in a single statement.
func (s *Store) UpsertAuthor(ctx context.Context, w store.AuthorWrite) (store.WriteResult, error) {
	query := s.db.Rebind(`
		INSERT INTO authors (author_name, reputation, profile_url, first_seen, last_seen, question_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (author_name) DO UPDATE SET
			reputation = excluded.reputation,
			profile_url = excluded.profile_url,
			last_seen = excluded.last_seen,
			question_count = authors.question_count + 1
		RETURNING question_count
	`)

	seen := w.SeenAt
	if seen.IsZero() {
		seen = s.now()
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, w.Name, w.Reputation, w.ProfileURL, seen, seen); err != nil {
		return store.WriteResult{}, fmt.Errorf("failed to upsert author %q: %w", w.Name, err)
	}

	return store.WriteResult{Inserted: count == 1, QuestionCount: count}, nil
}

// FindAuthor returns store.ErrNotFound when name is unknown.
func (s *Store) FindAuthor(ctx context.Context, name string) (*domain.Author, error) {
	query := s.db.Rebind(`SELECT ` + authorSelectColumns + ` FROM authors WHERE author_name = ?`)

	var a domain.Author
	if err := s.db.GetContext(ctx, &a, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("author %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get author %q: %w", name, err)
	}
	return &a, nil
}

// defaultTopAuthors applies when TopAuthors is called with a non-positive limit.
const defaultTopAuthors = 10

// TopAuthors returns the most active authors.
func (s *Store) TopAuthors(ctx context.Context, limit int) ([]domain.Author, error) {
	if limit <= 0 {
		limit = defaultTopAuthors
	}
	query := s.db.Rebind(`
		SELECT ` + authorSelectColumns + `
		FROM authors
		ORDER BY question_count DESC, reputation DESC, author_name ASC
		LIMIT ?
	`)

	var authors []domain.Author
	if err := s.db.SelectContext(ctx, &authors, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list top authors: %w", err)
	}
	if authors == nil {
		authors = []domain.Author{}
	}
	return authors, nil
}

// DeleteAllAuthors removes every author row.
func (s *Store) DeleteAllAuthors(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM authors`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete authors: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted authors: %w", err)
	}
	return n, nil
}
