package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

func entry(id, source string, index int, vector []float32) domain.Entry {
	return domain.Entry{ID: id, Vector: vector, Text: "text of " + id, Source: source, Index: index}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("knowledge_base", "")
	require.NoError(t, err)
	return s
}

func TestAddAndCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.Entry{
		entry("a_chunk_0", "a", 0, []float32{1, 0}),
		entry("a_chunk_1", "a", 1, []float32{0, 1}),
	}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})}))

	err := s.Add(ctx, []domain.Entry{
		entry("b_chunk_0", "b", 0, []float32{1, 0}),
		entry("a_chunk_0", "a", 0, []float32{0, 1}),
	})
	assert.ErrorIs(t, err, domain.ErrIndexWrite)

	// the rejected batch must not be partially written
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAddRejectsDuplicateWithinBatch(t *testing.T) {
	s := newStore(t)
	err := s.Add(context.Background(), []domain.Entry{
		entry("a_chunk_0", "a", 0, []float32{1, 0}),
		entry("a_chunk_0", "a", 0, []float32{0, 1}),
	})
	assert.ErrorIs(t, err, domain.ErrIndexWrite)
}

func TestAddRejectsMixedDimensions(t *testing.T) {
	s := newStore(t)
	err := s.Add(context.Background(), []domain.Entry{
		entry("a_chunk_0", "a", 0, []float32{1, 0}),
		entry("a_chunk_1", "a", 1, []float32{1, 0, 0}),
	})
	assert.ErrorIs(t, err, domain.ErrIndexWrite)
}

func TestQueryRanksByDistance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.Entry{
		entry("a_chunk_0", "a", 0, []float32{1, 0}),
		entry("a_chunk_1", "a", 1, []float32{0, 1}),
		entry("b_chunk_0", "b", 0, []float32{0.9, 0.1}),
	}))

	results, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "text of a_chunk_0", results[0].Text)
	assert.Equal(t, "text of b_chunk_0", results[1].Text)
	assert.Less(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, "a", results[0].Source)
}

func TestQueryTieBreaksByInsertionOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// identical vectors, so identical distances
	require.NoError(t, s.Add(ctx, []domain.Entry{
		entry("first_chunk_0", "first", 0, []float32{1, 1}),
		entry("second_chunk_0", "second", 0, []float32{1, 1}),
	}))

	results, err := s.Query(ctx, []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Source)
	assert.Equal(t, "second", results[1].Source)
}

func TestQueryEmptyCollection(t *testing.T) {
	s := newStore(t)
	results, err := s.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryTopKLargerThanCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})}))

	results, err := s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClear(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})}))
	require.NoError(t, s.Clear(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	results, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// ids are reusable after a clear
	require.NoError(t, s.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})}))
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New("knowledge_base", dir)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []domain.Entry{
		entry("a_chunk_0", "a", 0, []float32{1, 0}),
		entry("a_chunk_1", "a", 1, []float32{0, 1}),
	}))

	reopened, err := New("knowledge_base", dir)
	require.NoError(t, err)

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := reopened.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "text of a_chunk_0", results[0].Text)

	// duplicate rejection survives the reload
	err = reopened.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})})
	assert.ErrorIs(t, err, domain.ErrIndexWrite)
}

func TestClearPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New("knowledge_base", dir)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []domain.Entry{entry("a_chunk_0", "a", 0, []float32{1, 0})}))
	require.NoError(t, s.Clear(ctx))

	reopened, err := New("knowledge_base", dir)
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFailedPersistLeavesStoreUnchanged(t *testing.T) {
	persistDir := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	s, err := New("knowledge_base", persistDir)
	require.NoError(t, err)

	// Occupy the persist path with a regular file so the snapshot write fails.
	require.NoError(t, os.WriteFile(persistDir, []byte("x"), 0o644))

	e := entry("a_chunk_0", "a", 0, []float32{1, 0})
	require.Error(t, s.Add(ctx, []domain.Entry{e}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Once the obstruction is gone the same batch can be retried without
	// tripping duplicate rejection.
	require.NoError(t, os.Remove(persistDir))
	require.NoError(t, s.Add(ctx, []domain.Entry{e}))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
