package vectorindex

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"learn-copilot-go/internal/config"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/pkg/log"
)

// esDocument 是条目在 Elasticsearch 中的存储形态。
type esDocument struct {
	VectorID string         `json:"vector_id"`
	Text     string         `json:"text_content"`
	Vector   []float32      `json:"vector"`
	Metadata model.Metadata `json:"metadata"`
}

// ESIndex 是基于 Elasticsearch dense_vector 的索引后端。
// 相似度在本进程内按余弦重新计算，保证与本地后端语义一致；
// knn 召回只负责候选集。持久性由 ES 集群保证。
type ESIndex struct {
	client     *elasticsearch.Client
	indexName  string
	dim        int
	sampleSize int
}

// OpenES 创建 Elasticsearch 后端。索引不存在时按配置维度创建；
// 已存在但映射维度不一致时返回错误，这是致命的启动条件。
func OpenES(cfg config.ElasticsearchConfig, dim, statsSample int) (*ESIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}
	if statsSample <= 0 {
		statsSample = 100
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}

	idx := &ESIndex{client: client, indexName: cfg.IndexName, dim: dim, sampleSize: statsSample}
	if err := idx.ensureIndex(); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureIndex 检查索引是否存在，不存在则创建，存在则校验向量维度。
func (idx *ESIndex) ensureIndex() error {
	res, err := idx.client.Indices.Exists([]string{idx.indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在失败: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return idx.checkDimension()
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引时收到意外状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "flattened" }
			}
		}
	}`, idx.dim)

	createRes, err := idx.client.Indices.Create(
		idx.indexName,
		idx.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", idx.indexName, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", idx.indexName, createRes.String())
	}
	log.Infof("[VectorIndex] 索引 '%s' 创建成功, 维度: %d", idx.indexName, idx.dim)
	return nil
}

// checkDimension 对照已有映射校验 dense_vector 维度。
func (idx *ESIndex) checkDimension() error {
	res, err := idx.client.Indices.GetMapping(
		idx.client.Indices.GetMapping.WithIndex(idx.indexName),
	)
	if err != nil {
		return fmt.Errorf("获取索引映射失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("获取索引映射时 Elasticsearch 返回错误: %s", res.String())
	}

	var mapping map[string]struct {
		Mappings struct {
			Properties struct {
				Vector struct {
					Dims int `json:"dims"`
				} `json:"vector"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mapping); err != nil {
		return fmt.Errorf("解析索引映射失败: %w", err)
	}
	for _, m := range mapping {
		if dims := m.Mappings.Properties.Vector.Dims; dims != 0 && dims != idx.dim {
			return fmt.Errorf("%w: index stores dimension %d, model produces %d",
				ErrDimensionMismatch, dims, idx.dim)
		}
	}
	return nil
}

// Add 以 id 为文档主键写入，天然具备幂等覆盖语义。
func (idx *ESIndex) Add(ctx context.Context, id string, vector []float32, text string, metadata model.Metadata) error {
	if text == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	if len(vector) != idx.dim {
		return fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(vector), idx.dim)
	}
	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	doc := esDocument{VectorID: id, Text: text, Vector: vector, Metadata: metadata}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      idx.indexName,
		DocumentID: id,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		return fmt.Errorf("索引文档失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("索引文档时 Elasticsearch 返回错误: %s", res.String())
	}
	return nil
}

// AddBatch 批量入库，空文本条目跳过；返回实际插入的 id，保持输入顺序。
func (idx *ESIndex) AddBatch(ctx context.Context, entries []model.IndexedVector) ([]string, error) {
	var inserted []string
	for _, e := range entries {
		if e.Text == "" {
			continue
		}
		if err := idx.Add(ctx, e.ID, e.Vector, e.Text, e.Metadata); err != nil {
			return inserted, err
		}
		inserted = append(inserted, e.ID)
	}
	return inserted, nil
}

// Search 通过 knn 召回候选集，在本进程内按余弦重排以保证跨后端一致的
// 相似度语义（零范数向量相似度为 0.0）。
func (idx *ESIndex) Search(ctx context.Context, vector []float32, k int, filter model.Metadata) ([]model.SearchResult, error) {
	if k <= 0 {
		return []model.SearchResult{}, nil
	}
	if k > MaxSearchResults {
		k = MaxSearchResults
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if len(filter) > 0 {
		var terms []map[string]interface{}
		for key, val := range filter {
			terms = append(terms, map[string]interface{}{
				"term": map[string]interface{}{"metadata." + key: val},
			})
		}
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": terms},
		}
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": k,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("序列化查询失败: %w", err)
	}

	res, err := idx.client.Search(
		idx.client.Search.WithContext(ctx),
		idx.client.Search.WithIndex(idx.indexName),
		idx.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s, body: %s", res.Status(), string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	results := make([]model.SearchResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResult{
			ID:              hit.Source.VectorID,
			Text:            hit.Source.Text,
			Metadata:        hit.Source.Metadata,
			SimilarityScore: Cosine(vector, hit.Source.Vector),
		})
	}
	// knn 召回顺序与余弦重排可能有细微差异，这里以本地计算为准
	stableSortByScore(results)
	return results, nil
}

// Get 按 id 返回条目，不存在时返回 (nil, nil)。
func (idx *ESIndex) Get(ctx context.Context, id string) (*model.IndexedVector, error) {
	req := esapi.GetRequest{Index: idx.indexName, DocumentID: id}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		return nil, fmt.Errorf("获取文档失败: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("获取文档时 Elasticsearch 返回错误: %s", res.String())
	}

	var body struct {
		Source esDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析文档响应失败: %w", err)
	}
	return &model.IndexedVector{
		ID:       body.Source.VectorID,
		Vector:   body.Source.Vector,
		Text:     body.Source.Text,
		Metadata: body.Source.Metadata,
	}, nil
}

// Delete 删除指定 id 的文档；id 不存在返回 false，不视为错误。
func (idx *ESIndex) Delete(ctx context.Context, id string) (bool, error) {
	req := esapi.DeleteRequest{Index: idx.indexName, DocumentID: id, Refresh: "true"}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		return false, fmt.Errorf("删除文档失败: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("删除文档时 Elasticsearch 返回错误: %s", res.String())
	}
	return true, nil
}

// Count 返回索引中的文档总数。
func (idx *ESIndex) Count(ctx context.Context) (int, error) {
	res, err := idx.client.Count(
		idx.client.Count.WithContext(ctx),
		idx.client.Count.WithIndex(idx.indexName),
	)
	if err != nil {
		return 0, fmt.Errorf("统计文档数失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("统计文档数时 Elasticsearch 返回错误: %s", res.String())
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("解析计数响应失败: %w", err)
	}
	return body.Count, nil
}

// Stats 抓取前 sampleSize 条文档做近似聚合，与本地后端保持同一采样语义。
func (idx *ESIndex) Stats(ctx context.Context) (*model.IndexStats, error) {
	total, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}

	res, err := idx.client.Search(
		idx.client.Search.WithContext(ctx),
		idx.client.Search.WithIndex(idx.indexName),
		idx.client.Search.WithSize(idx.sampleSize),
	)
	if err != nil {
		return nil, fmt.Errorf("抓取统计样本失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("抓取统计样本时 Elasticsearch 返回错误: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析样本响应失败: %w", err)
	}

	sample := make([]*model.IndexedVector, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		sample = append(sample, &model.IndexedVector{
			ID:       hit.Source.VectorID,
			Text:     hit.Source.Text,
			Metadata: hit.Source.Metadata,
		})
	}
	return statsFromSample(total, sample), nil
}

// Close 对远端后端无事可做。
func (idx *ESIndex) Close() error {
	return nil
}
