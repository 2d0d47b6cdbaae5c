// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Store keeps questions and authors in maps.
type Store struct {
	mu        sync.Mutex
	questions map[int64]domain.Question
	authors   map[string]domain.Author
	now       func() time.Time
	closed    bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		questions: make(map[int64]domain.Question),
		authors:   make(map[string]domain.Author),
		now:       time.Now,
	}
}

// Seed stores questions directly, bypassing the author aggregate.
func (s *Store) Seed(questions ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		s.questions[q.ID] = q
	}
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ExistingIDs returns a fresh set holding every stored id.
func (s *Store) ExistingIDs(context.Context) (domain.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(domain.IDSet, len(s.questions))
	for id := range s.questions {
		ids.Add(id)
	}
	return ids, nil
}

// FindByID returns a copy of the question, or store.ErrNotFound.
func (s *Store) FindByID(_ context.Context, id int64) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

// FindByIDs returns the stored subset of ids ordered by id. Unknown ids are
// ignored and a nil slice selects every question.
func (s *Store) FindByIDs(_ context.Context, ids []int64) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Question, 0)
	if ids == nil {
		for _, q := range s.questions {
			out = append(out, q)
		}
	} else {
		for _, id := range ids {
			if q, ok := s.questions[id]; ok {
				out = append(out, q)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Question) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// UpsertQuestion replaces the question keyed by q.ID and reports whether it
// was new.
func (s *Store) UpsertQuestion(_ context.Context, q domain.Question) (store.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.questions[q.ID]
	s.questions[q.ID] = q
	return store.WriteResult{Inserted: !exists}, nil
}

// DeleteAllQuestions drops every question and returns how many there were.
func (s *Store) DeleteAllQuestions(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.questions))
	s.questions = make(map[int64]domain.Question)
	return n, nil
}

// UpsertAuthor creates or refreshes the author and increments its question
// count. FirstSeen is kept from the first write; a zero SeenAt uses the clock.
func (s *Store) UpsertAuthor(_ context.Context, w store.AuthorWrite) (store.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := w.SeenAt
	if seen.IsZero() {
		seen = s.now().UTC()
	}

	a, exists := s.authors[w.Name]
	if !exists {
		a = domain.Author{Name: w.Name, FirstSeen: seen}
	}
	a.Reputation = w.Reputation
	a.ProfileURL = w.ProfileURL
	a.LastSeen = seen
	a.QuestionCount++
	s.authors[w.Name] = a

	return store.WriteResult{Inserted: !exists, QuestionCount: a.QuestionCount}, nil
}

// FindAuthor returns a copy of the author, or store.ErrNotFound.
func (s *Store) FindAuthor(_ context.Context, name string) (*domain.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.authors[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

// TopAuthors orders by question count, then reputation, then name.
func (s *Store) TopAuthors(_ context.Context, limit int) ([]domain.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Author, 0, len(s.authors))
	for _, a := range s.authors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionCount != out[j].QuestionCount {
			return out[i].QuestionCount > out[j].QuestionCount
		}
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAllAuthors drops every author and returns how many there were.
func (s *Store) DeleteAllAuthors(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.authors))
	s.authors = make(map[string]domain.Author)
	return n, nil
}

// Stats counts questions and authors and scans the publication dates.
func (s *Store) Stats(context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := store.Stats{Questions: int64(len(s.questions)), Authors: int64(len(s.authors))}
	for _, q := range s.questions {
		if q.PublicationDate.IsZero() {
			continue
		}
		d := q.PublicationDate.UTC()
		if stats.EarliestPublication == nil || d.Before(*stats.EarliestPublication) {
			earliest := d
			stats.EarliestPublication = &earliest
		}
		if stats.LatestPublication == nil || d.After(*stats.LatestPublication) {
			latest := d
			stats.LatestPublication = &latest
		}
	}
	return stats, nil
}

// Close marks the store closed. Data is kept so tests can inspect it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.Store = (*Store)(nil)
