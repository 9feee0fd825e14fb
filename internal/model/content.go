package model

// Chunk 代表一段来自源文档的连续文本，是向量化的基本单元。
type Chunk struct {
	Text     string   `json:"text"`
	SourceID string   `json:"sourceId"`
	Index    int      `json:"index"`
	Metadata Metadata `json:"metadata"`
}

// IndexedVector 是向量索引中存储的完整条目。
// 同一索引内所有向量维度一致，ID 在索引内唯一。
type IndexedVector struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Text     string    `json:"text"`
	Metadata Metadata  `json:"metadata"`
}

// SearchResult 是一次查询返回的临时结果，不做持久化。
// SimilarityScore 按 1 - cosineDistance 计算，越大越相关，不保证落在 [0,1]。
type SearchResult struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Metadata        Metadata `json:"metadata"`
	SimilarityScore float64  `json:"similarityScore"`
}

// IndexStats 是对索引内容的近似统计，基于前 N 条样本聚合。
type IndexStats struct {
	TotalDocuments int            `json:"totalDocuments"`
	SampleSize     int            `json:"sampleSize"`
	Topics         map[string]int `json:"topics"`
	Subjects       map[string]int `json:"subjects"`
	Difficulties   map[string]int `json:"difficulties"`
}

// TutorAnswer 是问答接口的最终响应。
type TutorAnswer struct {
	Answer     string         `json:"answer"`
	Sources    []SearchResult `json:"sources"`
	Confidence float64        `json:"confidence"`
}
