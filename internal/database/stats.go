package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Stats counts both tables and reads the publication date bounds through
// the publication_date index.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats

	if err := s.db.GetContext(ctx, &stats.Questions, `SELECT COUNT(*) FROM questions`); err != nil {
		return stats, fmt.Errorf("failed to count questions: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.Authors, `SELECT COUNT(*) FROM authors`); err != nil {
		return stats, fmt.Errorf("failed to count authors: %w", err)
	}

	earliest, err := s.publicationBound(ctx, "ASC")
	if err != nil {
		return stats, err
	}
	latest, err := s.publicationBound(ctx, "DESC")
	if err != nil {
		return stats, err
	}
	if earliest.Valid {
		t := earliest.Time.UTC()
		stats.EarliestPublication = &t
	}
	if latest.Valid {
		t := latest.Time.UTC()
		stats.LatestPublication = &t
	}
	return stats, nil
}

// publicationBound selects the column itself rather than MIN/MAX so the
// sqlite driver keeps the declared TIMESTAMP type when scanning.
func (s *Store) publicationBound(ctx context.Context, order string) (sql.NullTime, error) {
	var bound sql.NullTime
	query := `SELECT publication_date FROM questions WHERE publication_date IS NOT NULL
		ORDER BY publication_date ` + order + ` LIMIT 1`
	if err := s.db.GetContext(ctx, &bound, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.NullTime{}, nil
		}
		return sql.NullTime{}, fmt.Errorf("failed to read publication range: %w", err)
	}
	return bound, nil
}
