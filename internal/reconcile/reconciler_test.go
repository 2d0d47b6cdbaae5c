package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/authors"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/reconcile"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/scope"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store/memory"
)

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*memory.Store

	mu          sync.Mutex
	snapshotErr error
	failWrites  map[int64]error
	failAuthors map[string]error
	lieInserted map[int64]bool
	upsertedIDs []int64
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:       memory.New(),
		failWrites:  map[int64]error{},
		failAuthors: map[string]error{},
		lieInserted: map[int64]bool{},
	}
}

func (f *faultyStore) ExistingIDs(ctx context.Context) (domain.IDSet, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.Store.ExistingIDs(ctx)
}

func (f *faultyStore) UpsertQuestion(ctx context.Context, q domain.Question) (store.WriteResult, error) {
	f.mu.Lock()
	f.upsertedIDs = append(f.upsertedIDs, q.ID)
	err := f.failWrites[q.ID]
	lie, lying := f.lieInserted[q.ID]
	f.mu.Unlock()

	if err != nil {
		return store.WriteResult{}, err
	}
	res, err := f.Store.UpsertQuestion(ctx, q)
	if lying {
		res.Inserted = lie
	}
	return res, err
}

func (f *faultyStore) UpsertAuthor(ctx context.Context, w store.AuthorWrite) (store.WriteResult, error) {
	if err := f.failAuthors[w.Name]; err != nil {
		return store.WriteResult{}, err
	}
	return f.Store.UpsertAuthor(ctx, w)
}

func batch(ids ...int64) []domain.Question {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Question{ID: id, Title: "t", AuthorName: "alice", AuthorReputation: int(id)})
	}
	return out
}

func newReconciler(st *faultyStore) *reconcile.Reconciler {
	return reconcile.New(st, authors.NewAggregator(st, logger.NewNop()), logger.NewNop())
}

func TestReconcile_ModeCorrectness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode       domain.ReconciliationMode
		wantStored int
		wantIDs    []int64
		wantScope  []int64
	}{
		{domain.ModeUpdateOnly, 1, []int64{101}, []int64{101}},
		{domain.ModeAppendOnly, 2, []int64{102, 103}, []int64{102, 103}},
		{domain.ModeUpsert, 3, []int64{101, 102, 103}, []int64{101, 102, 103}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()

			st := newFaultyStore()
			st.Seed(domain.Question{ID: 101, Title: "old"})

			fetched := batch(101, 102, 103)
			out, err := newReconciler(st).Reconcile(context.Background(), fetched, tt.mode)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStored, out.Stored)
			assert.Equal(t, tt.wantIDs, out.WrittenIDs.Sorted())
			assert.ElementsMatch(t, tt.wantIDs, st.upsertedIDs)
			assert.Equal(t, 3-tt.wantStored, out.Filtered)
			assert.Equal(t, []int64{101}, out.PriorExisting.Sorted())

			got := scope.Compute(tt.mode, domain.NewIDSet(domain.IDs(fetched)...), out.WrittenIDs, out.PriorExisting)
			assert.Equal(t, tt.wantScope, got.Sorted())
		})
	}
}

func TestReconcile_InsertedVersusReplaced(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	st.Seed(domain.Question{ID: 1})

	out, err := newReconciler(st).Reconcile(context.Background(), batch(1, 2, 3), domain.ModeUpsert)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Inserted)
	assert.Equal(t, 1, out.Replaced)
	assert.Zero(t, out.Drift)
}

func TestReconcile_UpsertIsIdempotentByID(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	r := newReconciler(st)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, batch(1, 2), domain.ModeUpsert)
	require.NoError(t, err)
	second, err := r.Reconcile(ctx, batch(1, 2), domain.ModeUpsert)
	require.NoError(t, err)

	ids, err := st.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids.Sorted())
	assert.Equal(t, 2, second.Replaced)
	assert.Zero(t, second.Inserted)

	// The author counter increments on every write, re-writes included.
	alice, err := st.FindAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, alice.QuestionCount)
	assert.Equal(t, authors.Counts{Updated: 2}, second.Authors)
}

func TestReconcile_AuthorClassification(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	qs := []domain.Question{
		{ID: 1, AuthorName: "alice"},
		{ID: 2, AuthorName: "alice"},
		{ID: 3, AuthorName: domain.UnknownAuthor},
		{ID: 4, AuthorName: "bob"},
	}

	out, err := newReconciler(st).Reconcile(context.Background(), qs, domain.ModeUpsert)
	require.NoError(t, err)

	assert.Equal(t, authors.Counts{New: 2, Updated: 1, Skipped: 1}, out.Authors)
}

func TestReconcile_WriteErrorIsIsolated(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	st.failWrites[2] = errors.New("duplicate key value violates unique constraint")

	out, err := newReconciler(st).Reconcile(context.Background(), batch(1, 2, 3), domain.ModeUpsert)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Stored)
	assert.Equal(t, 1, out.WriteErrors)
	assert.Equal(t, []int64{1, 3}, out.WrittenIDs.Sorted())
	assert.Equal(t, []int64{2}, scope.Unwritten(domain.NewIDSet(1, 2, 3), out.WrittenIDs).Sorted())
}

func TestReconcile_AuthorErrorKeepsQuestion(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	st.failAuthors["alice"] = errors.New("author table locked")

	out, err := newReconciler(st).Reconcile(context.Background(), batch(1), domain.ModeUpsert)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Stored)
	assert.Equal(t, 1, out.Authors.Errors)
	_, findErr := st.FindByID(context.Background(), 1)
	assert.NoError(t, findErr)
}

func TestReconcile_SnapshotErrorIsFatal(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	st.snapshotErr = errors.New("connection refused")

	_, err := newReconciler(st).Reconcile(context.Background(), batch(1), domain.ModeUpsert)
	require.Error(t, err)
	assert.ErrorIs(t, err, st.snapshotErr)
	assert.Empty(t, st.upsertedIDs)
}

func TestReconcileAgainst_UsesGivenSnapshot(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	st.Seed(domain.Question{ID: 1})
	st.snapshotErr = errors.New("must not be read")

	out, err := newReconciler(st).ReconcileAgainst(context.Background(), batch(1, 2), domain.ModeUpdateOnly, domain.NewIDSet(1))
	require.NoError(t, err)

	assert.Equal(t, 1, out.Stored)
	assert.Equal(t, 1, out.Filtered)
	assert.Equal(t, []int64{1}, st.upsertedIDs)
	assert.True(t, out.PriorExisting.Has(1))
}

func TestReconcile_DriftFromWriteResult(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	// Another writer inserted 5 between the snapshot and the write.
	st.lieInserted[5] = false

	out, err := newReconciler(st).Reconcile(context.Background(), batch(5), domain.ModeAppendOnly)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Stored)
	assert.Equal(t, 1, out.Drift)
}

func TestReconcile_CancelledStopsWrites(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReconciler(st).Reconcile(ctx, batch(1, 2), domain.ModeUpsert)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.upsertedIDs)
}

func TestReconcile_WithoutAggregator(t *testing.T) {
	t.Parallel()

	st := newFaultyStore()
	out, err := reconcile.New(st, nil, logger.NewNop()).Reconcile(context.Background(), batch(1), domain.ModeUpsert)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Stored)
	_, err = st.FindAuthor(context.Background(), "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSelect_PreservesOrder(t *testing.T) {
	t.Parallel()

	got, dropped := reconcile.Select(batch(3, 1, 2, 5), domain.ModeAppendOnly, domain.NewIDSet(1))
	assert.Equal(t, []int64{3, 2, 5}, domain.IDs(got))
	assert.Equal(t, 1, dropped)
}
