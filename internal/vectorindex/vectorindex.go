// Package vectorindex 提供向量索引的统一接口与两种后端实现：
// 本地 bbolt 持久化索引（默认）与 Elasticsearch dense_vector 索引。
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"

	"learn-copilot-go/internal/model"
)

// 单次检索返回结果数量的硬上限。
const MaxSearchResults = 100

var (
	// ErrInvalidInput 表示入库内容不合法（空文本、非法元数据）。
	ErrInvalidInput = errors.New("vectorindex: invalid input")
	// ErrDimensionMismatch 表示向量维度与索引维度不一致。
	ErrDimensionMismatch = errors.New("vectorindex: vector dimension mismatch")
)

// Index 定义了向量索引的操作接口。
// Add 对相同 id 执行幂等覆盖；Search 结果按相似度降序排列，
// 相似度相同的条目保持插入顺序（稳定排序）。
type Index interface {
	Add(ctx context.Context, id string, vector []float32, text string, metadata model.Metadata) error
	AddBatch(ctx context.Context, entries []model.IndexedVector) ([]string, error)
	Search(ctx context.Context, vector []float32, k int, filter model.Metadata) ([]model.SearchResult, error)
	Get(ctx context.Context, id string) (*model.IndexedVector, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.IndexStats, error)
	Close() error
}

// Cosine 计算两个向量的余弦相似度。
// 任意一方为零向量时相似度定义为 0.0，不产生 NaN，也不报错。
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// stableSortByScore 按相似度降序稳定排序，平序条目保持原有顺序。
func stableSortByScore(results []model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
}

// statsFromSample 基于样本条目聚合主题/学科/难度的近似分布。
func statsFromSample(total int, sample []*model.IndexedVector) *model.IndexStats {
	stats := &model.IndexStats{
		TotalDocuments: total,
		SampleSize:     len(sample),
		Topics:         make(map[string]int),
		Subjects:       make(map[string]int),
		Difficulties:   make(map[string]int),
	}
	for _, e := range sample {
		stats.Topics[e.Metadata.GetString("topic", "Unknown")]++
		stats.Subjects[e.Metadata.GetString("subject", "Unknown")]++
		stats.Difficulties[e.Metadata.GetString("difficulty_level", "Unknown")]++
	}
	return stats
}
