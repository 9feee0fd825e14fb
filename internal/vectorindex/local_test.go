package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learn-copilot-go/internal/model"
)

func openTestIndex(t *testing.T, dim int) *LocalIndex {
	t.Helper()
	idx, err := OpenLocal(t.TempDir(), dim, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestCosine(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	})
	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})
	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	})
	t.Run("zero vector is exactly zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
		assert.Equal(t, 0.0, Cosine([]float32{1, 2, 3}, []float32{0, 0, 0}))
	})
}

func TestLocalIndex_AddValidation(t *testing.T) {
	idx := openTestIndex(t, 3)
	ctx := context.Background()

	t.Run("empty text rejected", func(t *testing.T) {
		err := idx.Add(ctx, "a", []float32{1, 0, 0}, "", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
	t.Run("dimension mismatch rejected", func(t *testing.T) {
		err := idx.Add(ctx, "a", []float32{1, 0}, "text", nil)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
	t.Run("non scalar metadata rejected", func(t *testing.T) {
		err := idx.Add(ctx, "a", []float32{1, 0, 0}, "text", model.Metadata{"tags": []string{"x"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestLocalIndex_IdempotentUpsert(t *testing.T) {
	idx := openTestIndex(t, 3)
	ctx := context.Background()
	meta := model.Metadata{"subject": "Physics"}

	require.NoError(t, idx.Add(ctx, "doc1", []float32{1, 0, 0}, "bernoulli", meta))
	require.NoError(t, idx.Add(ctx, "doc1", []float32{1, 0, 0}, "bernoulli", meta))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := idx.Get(ctx, "doc1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bernoulli", got.Text)
	assert.Equal(t, "Physics", got.Metadata.GetString("subject", ""))
}

func TestLocalIndex_SearchOrdering(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "far", []float32{0, 1}, "far", nil))
	require.NoError(t, idx.Add(ctx, "near", []float32{1, 0.1}, "near", nil))
	require.NoError(t, idx.Add(ctx, "exact", []float32{1, 0}, "exact", nil))

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].SimilarityScore, results[i].SimilarityScore,
			"results must be sorted by non-increasing similarity")
	}
	assert.Equal(t, "exact", results[0].ID)
}

func TestLocalIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	// 三个同向向量与查询向量相似度完全相同
	require.NoError(t, idx.Add(ctx, "first", []float32{2, 0}, "a", nil))
	require.NoError(t, idx.Add(ctx, "second", []float32{4, 0}, "b", nil))
	require.NoError(t, idx.Add(ctx, "third", []float32{1, 0}, "c", nil))

	results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{results[0].ID, results[1].ID, results[2].ID})
}

func TestLocalIndex_MetadataFilterConjunction(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "p1", []float32{1, 0}, "pressure",
		model.Metadata{"subject": "Physics", "difficulty_level": "beginner"}))
	require.NoError(t, idx.Add(ctx, "p2", []float32{1, 0}, "lift",
		model.Metadata{"subject": "Physics", "difficulty_level": "advanced"}))
	require.NoError(t, idx.Add(ctx, "b1", []float32{1, 0}, "cells",
		model.Metadata{"subject": "Biology", "difficulty_level": "beginner"}))

	results, err := idx.Search(ctx, []float32{1, 0}, 10, model.Metadata{"subject": "Physics"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "Physics", r.Metadata.GetString("subject", ""))
	}

	results, err = idx.Search(ctx, []float32{1, 0}, 10,
		model.Metadata{"subject": "Physics", "difficulty_level": "beginner"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
}

func TestLocalIndex_DeleteUnknownID(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "keep", []float32{1, 0}, "keep", nil))

	deleted, err := idx.Delete(ctx, "unknown-id")
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err = idx.Delete(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLocalIndex_AddBatchSkipsEmptyText(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	inserted, err := idx.AddBatch(ctx, []model.IndexedVector{
		{ID: "a", Vector: []float32{1, 0}, Text: "alpha"},
		{ID: "b", Vector: []float32{0, 1}, Text: ""},
		{ID: "c", Vector: []float32{1, 1}, Text: "gamma"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, inserted)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLocalIndex_Stats(t *testing.T) {
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "1", []float32{1, 0}, "a",
		model.Metadata{"subject": "Physics", "topic": "Fluids"}))
	require.NoError(t, idx.Add(ctx, "2", []float32{1, 0}, "b",
		model.Metadata{"subject": "Physics", "topic": "Optics"}))
	require.NoError(t, idx.Add(ctx, "3", []float32{1, 0}, "c", nil))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 3, stats.SampleSize)
	assert.Equal(t, 2, stats.Subjects["Physics"])
	assert.Equal(t, 1, stats.Subjects["Unknown"])
	assert.Equal(t, 1, stats.Topics["Fluids"])
}

func TestLocalIndex_StatsSampleWindow(t *testing.T) {
	idx, err := OpenLocal(t.TempDir(), 2, 2)
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "1", []float32{1, 0}, "a", model.Metadata{"subject": "Math"}))
	require.NoError(t, idx.Add(ctx, "2", []float32{1, 0}, "b", model.Metadata{"subject": "Math"}))
	require.NoError(t, idx.Add(ctx, "3", []float32{1, 0}, "c", model.Metadata{"subject": "Biology"}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 2, stats.SampleSize)
	// 样本是前两条，Biology 不在窗口内
	assert.Equal(t, 0, stats.Subjects["Biology"])
}

func TestLocalIndex_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := OpenLocal(dir, 2, 100)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "persist", []float32{1, 0}, "kept text",
		model.Metadata{"subject": "Physics"}))
	require.NoError(t, idx.Close())

	reopened, err := OpenLocal(dir, 2, 100)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept text", got.Text)

	results, err := reopened.Search(ctx, []float32{1, 0}, 5, model.Metadata{"subject": "Physics"})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestLocalIndex_DimensionMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenLocal(dir, 2, 100)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenLocal(dir, 3, 100)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
