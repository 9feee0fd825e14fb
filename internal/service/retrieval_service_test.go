package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// stubEmbedder 根据文本内容产生确定性向量，便于断言检索排序。
type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("embedding api unavailable")
	}
	if text == "" {
		return make([]float32, testDim), nil
	}
	return embedText(text), nil
}

func (s *stubEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embedding api unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return testDim }

// embedText 把首个关键词映射到一个坐标轴，同主题文本向量方向一致。
func embedText(text string) []float32 {
	v := make([]float32, testDim)
	switch {
	case strings.Contains(text, "physics"):
		v[0] = 1
	case strings.Contains(text, "algebra"):
		v[1] = 1
	case strings.Contains(text, "history"):
		v[2] = 1
	default:
		v[3] = 1
	}
	return v
}

func newTestService(t *testing.T) (RetrievalService, *stubEmbedder, vectorindex.Index) {
	t.Helper()
	idx, err := vectorindex.OpenLocal(filepath.Join(t.TempDir(), "index.db"), testDim, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	emb := &stubEmbedder{}
	return NewRetrievalService(emb, idx, 100, 20), emb, idx
}

func TestContentID(t *testing.T) {
	a := ContentID("some study notes")
	b := ContentID("some study notes")
	c := ContentID("different notes")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "doc_"))
}

func TestRetrievalService_AddDocument(t *testing.T) {
	svc, _, idx := newTestService(t)
	ctx := context.Background()

	ids, err := svc.AddDocument(ctx, "physics is the study of matter and energy", model.Metadata{"subject": "physics"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	entry, err := idx.Get(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "physics", entry.Metadata["subject"])

	// 相同文本重复入库是幂等的
	again, err := svc.AddDocument(ctx, "physics is the study of matter and energy", nil)
	require.NoError(t, err)
	assert.Equal(t, ids, again)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRetrievalService_AddDocumentEmptyText(t *testing.T) {
	svc, emb, _ := newTestService(t)

	ids, err := svc.AddDocument(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, emb.calls)
}

func TestRetrievalService_AddEducationalContent(t *testing.T) {
	svc, _, idx := newTestService(t)
	ctx := context.Background()

	text := strings.Repeat("algebra basics. ", 20) // 约 320 字符，chunkSize 100 会产生多块
	parentID, ids, err := svc.AddEducationalContent(ctx, text, model.Metadata{"subject": "math", "topic": "algebra"})
	require.NoError(t, err)
	require.NotEmpty(t, parentID)
	require.Greater(t, len(ids), 1)

	for i, id := range ids {
		assert.True(t, strings.HasPrefix(id, parentID+"_chunk_"), "id %s should carry parent prefix", id)

		entry, err := idx.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "math", entry.Metadata["subject"])
		assert.Equal(t, parentID, entry.Metadata[model.MetaParentContentID])
		assert.EqualValues(t, i, entry.Metadata[model.MetaChunkIndex])
		assert.EqualValues(t, len(ids), entry.Metadata[model.MetaTotalChunks])
		assert.EqualValues(t, len(entry.Text), entry.Metadata[model.MetaContentLength])
		assert.NotEmpty(t, entry.Metadata[model.MetaTimestamp])
	}
}

func TestRetrievalService_Search(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddDocument(ctx, "physics formulas for motion", model.Metadata{"subject": "physics"})
	require.NoError(t, err)
	_, err = svc.AddDocument(ctx, "algebra equations and variables", model.Metadata{"subject": "math"})
	require.NoError(t, err)

	results, err := svc.Search(ctx, "physics question", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "physics")
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-9)

	filtered, err := svc.Search(ctx, "physics question", 5, model.Metadata{"subject": "math"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Contains(t, filtered[0].Text, "algebra")
}

func TestRetrievalService_SearchEmptyQuery(t *testing.T) {
	svc, emb, _ := newTestService(t)

	results, err := svc.Search(context.Background(), "   ", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	// 空查询不应触发向量化调用
	assert.Zero(t, emb.calls)
}

func TestRetrievalService_SearchEmbeddingFailure(t *testing.T) {
	svc, emb, _ := newTestService(t)
	emb.fail = true

	results, err := svc.Search(context.Background(), "physics", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalService_Confidence(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.Zero(t, svc.Confidence(nil))

	results := []model.SearchResult{
		{SimilarityScore: 0.9},
		{SimilarityScore: 0.6},
	}
	assert.InDelta(t, 0.75, svc.Confidence(results), 1e-9)

	// 超过三条时只取前三条
	results = append(results, model.SearchResult{SimilarityScore: 0.3}, model.SearchResult{SimilarityScore: 0.0})
	assert.InDelta(t, 0.6, svc.Confidence(results), 1e-9)
}
