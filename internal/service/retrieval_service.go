// Package service 提供了检索与问答相关的业务逻辑。
package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"learn-copilot-go/internal/chunker"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/vectorindex"
	"learn-copilot-go/pkg/embedding"
	"learn-copilot-go/pkg/log"

	"github.com/google/uuid"
)

// 置信度取前 topConfidence 条结果的相似度均值。
const topConfidence = 3

// RetrievalService 接口定义了教学内容的入库与语义检索操作。
type RetrievalService interface {
	// AddDocument 将整段文本切块、向量化并写入索引，返回各块的内容寻址 ID。
	AddDocument(ctx context.Context, text string, metadata model.Metadata) ([]string, error)
	// AddEducationalContent 与 AddDocument 类似，但生成父内容 ID 并为每块附加教学元数据。
	AddEducationalContent(ctx context.Context, text string, metadata model.Metadata) (string, []string, error)
	// Search 语义检索。空查询直接返回空结果；向量化失败降级为空结果而不报错。
	Search(ctx context.Context, query string, k int, filter model.Metadata) ([]model.SearchResult, error)
	// Confidence 返回结果集的置信度，即前三条相似度的均值。
	Confidence(results []model.SearchResult) float64
	Get(ctx context.Context, id string) (*model.IndexedVector, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*model.IndexStats, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	index           vectorindex.Index
	chunkSize       int
	overlap         int
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, index vectorindex.Index, chunkSize, overlap int) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		index:           index,
		chunkSize:       chunkSize,
		overlap:         overlap,
	}
}

// ContentID 返回文本的 FNV-1a 内容寻址 ID。
// 选 FNV-1a 是取其便宜与确定性，不是抗碰撞；相同文本重复入库时幂等覆盖。
func ContentID(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("doc_%016x", h.Sum64())
}

// AddDocument 将文本切块后批量向量化并入库。
func (s *retrievalService) AddDocument(ctx context.Context, text string, metadata model.Metadata) ([]string, error) {
	pieces := chunker.Chunk(text, s.chunkSize, s.overlap)
	if len(pieces) == 0 {
		return nil, nil
	}
	log.Infof("[RetrievalService] 步骤1: 文本切块完成, chunks: %d", len(pieces))

	vectors, err := s.embeddingClient.CreateEmbeddings(ctx, pieces)
	if err != nil {
		log.Errorf("[RetrievalService] 批量向量化失败: %v", err)
		return nil, fmt.Errorf("failed to embed document chunks: %w", err)
	}
	log.Infof("[RetrievalService] 步骤2: 批量向量化成功, vectors: %d", len(vectors))

	entries := make([]model.IndexedVector, 0, len(pieces))
	for i, piece := range pieces {
		entries = append(entries, model.IndexedVector{
			ID:       ContentID(piece),
			Vector:   vectors[i],
			Text:     piece,
			Metadata: metadata.Clone(),
		})
	}

	ids, err := s.index.AddBatch(ctx, entries)
	if err != nil {
		log.Errorf("[RetrievalService] 批量入库失败: %v", err)
		return nil, fmt.Errorf("failed to index document chunks: %w", err)
	}
	log.Infof("[RetrievalService] 步骤3: 入库完成, indexed: %d", len(ids))
	return ids, nil
}

// AddEducationalContent 为整份教学内容生成父 ID，切块后以 "{parent}_chunk_{i}" 为块 ID 入库，
// 并为每块补充 content_length、timestamp、chunk_index、total_chunks、parent_content_id 元数据。
func (s *retrievalService) AddEducationalContent(ctx context.Context, text string, metadata model.Metadata) (string, []string, error) {
	pieces := chunker.Chunk(text, s.chunkSize, s.overlap)
	if len(pieces) == 0 {
		return "", nil, nil
	}

	parentID := uuid.NewString()
	log.Infof("[RetrievalService] 开始入库教学内容, parent: %s, chunks: %d", parentID, len(pieces))

	vectors, err := s.embeddingClient.CreateEmbeddings(ctx, pieces)
	if err != nil {
		log.Errorf("[RetrievalService] 批量向量化失败: %v", err)
		return "", nil, fmt.Errorf("failed to embed content chunks: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	entries := make([]model.IndexedVector, 0, len(pieces))
	for i, piece := range pieces {
		md := metadata.Clone()
		if md == nil {
			md = model.Metadata{}
		}
		md[model.MetaContentLength] = len(piece)
		md[model.MetaTimestamp] = now
		md[model.MetaChunkIndex] = i
		md[model.MetaTotalChunks] = len(pieces)
		md[model.MetaParentContentID] = parentID

		entries = append(entries, model.IndexedVector{
			ID:       fmt.Sprintf("%s_chunk_%d", parentID, i),
			Vector:   vectors[i],
			Text:     piece,
			Metadata: md,
		})
	}

	ids, err := s.index.AddBatch(ctx, entries)
	if err != nil {
		log.Errorf("[RetrievalService] 批量入库失败: %v", err)
		return "", nil, fmt.Errorf("failed to index content chunks: %w", err)
	}
	log.Infof("[RetrievalService] 教学内容入库完成, parent: %s, indexed: %d", parentID, len(ids))
	return parentID, ids, nil
}

// Search 执行语义检索。
func (s *retrievalService) Search(ctx context.Context, query string, k int, filter model.Metadata) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		// 空查询不调用向量化，直接返回空结果
		return []model.SearchResult{}, nil
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		// 向量化失败降级为空结果，检索接口对上层保持可用
		log.Errorf("[RetrievalService] 查询向量化失败, 降级为空结果: %v", err)
		return []model.SearchResult{}, nil
	}

	results, err := s.index.Search(ctx, queryVector, k, filter)
	if err != nil {
		log.Errorf("[RetrievalService] 索引检索失败: %v", err)
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	log.Infof("[RetrievalService] 检索完成, query: '%s', results: %d", query, len(results))
	return results, nil
}

// Confidence 取前三条结果相似度的均值，结果为空时为 0。
func (s *retrievalService) Confidence(results []model.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	n := len(results)
	if n > topConfidence {
		n = topConfidence
	}
	var sum float64
	for _, r := range results[:n] {
		sum += r.SimilarityScore
	}
	return sum / float64(n)
}

func (s *retrievalService) Get(ctx context.Context, id string) (*model.IndexedVector, error) {
	return s.index.Get(ctx, id)
}

func (s *retrievalService) Delete(ctx context.Context, id string) (bool, error) {
	return s.index.Delete(ctx, id)
}

func (s *retrievalService) Stats(ctx context.Context) (*model.IndexStats, error) {
	return s.index.Stats(ctx)
}
