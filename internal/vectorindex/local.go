package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/pkg/log"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// persistedEntry 是写入 bbolt 的条目形态。Seq 记录插入顺序，
// 重启后据此重建稳定的遍历顺序。
type persistedEntry struct {
	Seq      uint64         `json:"seq"`
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata model.Metadata `json:"metadata"`
}

// LocalIndex 是基于 bbolt 持久化的本地向量索引。
// 全部条目常驻内存做暴力余弦检索，写入先落盘再更新内存。
// 写操作之间以及写与读之间由互斥锁串行化，单次 Add 对读者原子可见。
type LocalIndex struct {
	mu         sync.RWMutex
	db         *bbolt.DB
	dim        int
	sampleSize int
	nextSeq    uint64
	order      []string // 按插入顺序排列的 id
	seqByID    map[string]uint64
	entries    map[string]*model.IndexedVector
}

// OpenLocal 打开（或创建）指定目录下的本地索引并加载全部条目。
// 目录中已存储向量的维度与 dim 不一致时返回错误，这是致命的启动条件。
func OpenLocal(path string, dim, statsSample int) (*LocalIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}
	if statsSample <= 0 {
		statsSample = 100
	}
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建索引目录失败: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(path, "index.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("打开索引数据库失败: %w", err)
	}

	idx := &LocalIndex{
		db:         db,
		dim:        dim,
		sampleSize: statsSample,
		seqByID:    make(map[string]uint64),
		entries:    make(map[string]*model.IndexedVector),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		if stored := meta.Get(keyDimension); stored != nil {
			storedDim := int(binary.BigEndian.Uint32(stored))
			if storedDim != dim {
				return fmt.Errorf("%w: index stores dimension %d, model produces %d",
					ErrDimensionMismatch, storedDim, dim)
			}
			return nil
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(dim))
		return meta.Put(keyDimension, buf)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("[VectorIndex] 本地索引已打开, path: %s, 维度: %d, 条目数: %d", path, dim, len(idx.order))
	return idx, nil
}

// load 将 bbolt 中的全部条目读入内存并按 Seq 重建插入顺序。
func (idx *LocalIndex) load() error {
	type loaded struct {
		id  string
		seq uint64
	}
	var ids []loaded
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var pe persistedEntry
			if err := json.Unmarshal(v, &pe); err != nil {
				return fmt.Errorf("解析条目 %q 失败: %w", string(k), err)
			}
			id := string(k)
			idx.entries[id] = &model.IndexedVector{
				ID:       id,
				Vector:   pe.Vector,
				Text:     pe.Text,
				Metadata: pe.Metadata,
			}
			idx.seqByID[id] = pe.Seq
			ids = append(ids, loaded{id: id, seq: pe.Seq})
			if pe.Seq >= idx.nextSeq {
				idx.nextSeq = pe.Seq + 1
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].seq < ids[j].seq })
	idx.order = make([]string, 0, len(ids))
	for _, l := range ids {
		idx.order = append(idx.order, l.id)
	}
	return nil
}

// Add 新增或覆盖一个条目。相同 id 重复写入不会增长索引，
// 覆盖保留原插入位置，保证检索的平序稳定性不受重复入库影响。
func (idx *LocalIndex) Add(ctx context.Context, id string, vector []float32, text string, metadata model.Metadata) error {
	if text == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	if len(vector) != idx.dim {
		return fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(vector), idx.dim)
	}
	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	seq, existed := idx.seqByID[id]
	if !existed {
		seq = idx.nextSeq
	}
	pe := persistedEntry{Seq: seq, Vector: vector, Text: text, Metadata: metadata}
	data, err := json.Marshal(pe)
	if err != nil {
		return fmt.Errorf("序列化条目失败: %w", err)
	}
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("持久化条目失败: %w", err)
	}

	idx.entries[id] = &model.IndexedVector{ID: id, Vector: vector, Text: text, Metadata: metadata.Clone()}
	if !existed {
		idx.seqByID[id] = seq
		idx.nextSeq = seq + 1
		idx.order = append(idx.order, id)
	}
	return nil
}

// AddBatch 批量入库。空文本的条目直接跳过，不计入返回值也不中断整批；
// 返回实际插入的 id，保持输入顺序。
func (idx *LocalIndex) AddBatch(ctx context.Context, entries []model.IndexedVector) ([]string, error) {
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

// Search 返回与查询向量最相似的至多 min(k, 100) 条结果。
// filter 非空时先按元数据精确匹配（全键合取）过滤再排序。
func (idx *LocalIndex) Search(ctx context.Context, vector []float32, k int, filter model.Metadata) ([]model.SearchResult, error) {
	if k <= 0 {
		return []model.SearchResult{}, nil
	}
	if k > MaxSearchResults {
		k = MaxSearchResults
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]model.SearchResult, 0, len(idx.order))
	for _, id := range idx.order {
		e := idx.entries[id]
		if len(filter) > 0 && !e.Metadata.Matches(filter) {
			continue
		}
		results = append(results, model.SearchResult{
			ID:              e.ID,
			Text:            e.Text,
			Metadata:        e.Metadata.Clone(),
			SimilarityScore: Cosine(vector, e.Vector),
		})
	}

	// 稳定排序：相似度相同的条目保持插入顺序
	stableSortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Get 按 id 返回条目，不存在时返回 (nil, nil)。
func (idx *LocalIndex) Get(ctx context.Context, id string) (*model.IndexedVector, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Metadata = e.Metadata.Clone()
	return &cp, nil
}

// Delete 删除指定 id 的条目。条目存在并被删除返回 true，
// id 不存在返回 false，不视为错误。
func (idx *LocalIndex) Delete(ctx context.Context, id string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries[id]; !ok {
		return false, nil
	}
	err := idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(id))
	})
	if err != nil {
		return false, fmt.Errorf("删除条目失败: %w", err)
	}
	delete(idx.entries, id)
	delete(idx.seqByID, id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count 返回索引中的条目总数。
func (idx *LocalIndex) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.order), nil
}

// Stats 返回基于前 sampleSize 条样本的近似统计。
// 这是刻意的近似：样本窗口大小由 index.stats_sample 配置显式给出。
func (idx *LocalIndex) Stats(ctx context.Context) (*model.IndexStats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.sampleSize
	if n > len(idx.order) {
		n = len(idx.order)
	}
	sample := make([]*model.IndexedVector, 0, n)
	for _, id := range idx.order[:n] {
		sample = append(sample, idx.entries[id])
	}
	return statsFromSample(len(idx.order), sample), nil
}

// Close 关闭底层数据库。
func (idx *LocalIndex) Close() error {
	return idx.db.Close()
}
