package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// questionSelectColumns lists columns for SELECT queries on questions.
const questionSelectColumns = `id, title, url, summary, tags, author_name, author_reputation,
	author_profile_url, publication_date, view_count, vote_count, answer_count`

// maxInParams bounds the id list bound into one IN (...) clause.
const maxInParams = 500

type questionRow struct {
	ID               int64        `db:"id"`
	Title            string       `db:"title"`
	URL              string       `db:"url"`
	Summary          string       `db:"summary"`
	Tags             domain.Tags  `db:"tags"`
	AuthorName       string       `db:"author_name"`
	AuthorReputation int          `db:"author_reputation"`
	AuthorProfileURL string       `db:"author_profile_url"`
	PublicationDate  sql.NullTime `db:"publication_date"`
	ViewCount        int          `db:"view_count"`
	VoteCount        int          `db:"vote_count"`
	AnswerCount      int          `db:"answer_count"`
}

func (r questionRow) toDomain() domain.Question {
	q := domain.Question{
		ID:               r.ID,
		Title:            r.Title,
		URL:              r.URL,
		Summary:          r.Summary,
		Tags:             r.Tags,
		AuthorName:       r.AuthorName,
		AuthorReputation: r.AuthorReputation,
		AuthorProfileURL: r.AuthorProfileURL,
		ViewCount:        r.ViewCount,
		VoteCount:        r.VoteCount,
		AnswerCount:      r.AnswerCount,
	}
	if r.PublicationDate.Valid {
		q.PublicationDate = r.PublicationDate.Time.UTC()
	}
	return q
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// ExistingIDs returns the id of every stored question.
func (s *Store) ExistingIDs(ctx context.Context) (domain.IDSet, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM questions`); err != nil {
		return nil, fmt.Errorf("failed to list question ids: %w", err)
	}
	return domain.NewIDSet(ids...), nil
}

// FindByID returns store.ErrNotFound when no question has id.
func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Question, error) {
	query := s.db.Rebind(`SELECT ` + questionSelectColumns + ` FROM questions WHERE id = ?`)

	var row questionRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("question %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question %d: %w", id, err)
	}

	q := row.toDomain()
	return &q, nil
}

// FindByIDs returns questions ordered by id. A nil ids slice selects all rows.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if ids == nil {
		var rows []questionRow
		query := `SELECT ` + questionSelectColumns + ` FROM questions ORDER BY id`
		if err := s.db.SelectContext(ctx, &rows, query); err != nil {
			return nil, fmt.Errorf("failed to list questions: %w", err)
		}
		return toQuestions(rows), nil
	}

	out := make([]domain.Question, 0, len(ids))
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))

		query, args, err := sqlx.In(
			`SELECT `+questionSelectColumns+` FROM questions WHERE id IN (?) ORDER BY id`,
			ids[start:end],
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build id query: %w", err)
		}

		var rows []questionRow
		if selectErr := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); selectErr != nil {
			return nil, fmt.Errorf("failed to select questions by id: %w", selectErr)
		}
		out = append(out, toQuestions(rows)...)
	}
	return out, nil
}

func toQuestions(rows []questionRow) []domain.Question {
	out := make([]domain.Question, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}

// UpsertQuestion inserts q or replaces every attribute of the stored row.
// The revision column is 1 only right after an insert, which tells the
// caller whether this write created the row.
func (s *Store) UpsertQuestion(ctx context.Context, q domain.Question) (store.WriteResult, error) {
	query := s.db.Rebind(`
		INSERT INTO questions (id, title, url, summary, tags, author_name, author_reputation,
			author_profile_url, publication_date, view_count, vote_count, answer_count,
			revision, stored_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			summary = excluded.summary,
			tags = excluded.tags,
			author_name = excluded.author_name,
			author_reputation = excluded.author_reputation,
			author_profile_url = excluded.author_profile_url,
			publication_date = excluded.publication_date,
			view_count = excluded.view_count,
			vote_count = excluded.vote_count,
			answer_count = excluded.answer_count,
			revision = questions.revision + 1,
			last_updated = excluded.last_updated
		RETURNING revision
	`)

	tags := q.Tags
	if tags == nil {
		tags = domain.Tags{}
	}
	now := s.now()

	var revision int
	err := s.db.GetContext(ctx, &revision, query,
		q.ID, q.Title, q.URL, q.Summary, tags, q.AuthorName, q.AuthorReputation,
		q.AuthorProfileURL, nullTime(q.PublicationDate), q.ViewCount, q.VoteCount, q.AnswerCount,
		now, now,
	)
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("failed to upsert question %d: %w", q.ID, err)
	}

	return store.WriteResult{Inserted: revision == 1}, nil
}

// DeleteAllQuestions removes every question row.
func (s *Store) DeleteAllQuestions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM questions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete questions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted questions: %w", err)
	}
	return n, nil
}
