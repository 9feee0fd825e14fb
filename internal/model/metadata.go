// Package model 包含了应用的数据模型定义。
package model

import "fmt"

// 索引在入库时派生并写入元数据的保留键。
const (
	MetaContentLength   = "content_length"
	MetaTimestamp       = "timestamp"
	MetaChunkIndex      = "chunk_index"
	MetaTotalChunks     = "total_chunks"
	MetaParentContentID = "parent_content_id"
)

// Metadata 是附加在内容上的开放式元数据映射。
// 值只允许标量类型（字符串、数字、布尔），未知键允许但同样受类型约束。
type Metadata map[string]interface{}

// Validate 校验所有值均为允许的标量类型。
func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			// ok
		default:
			return fmt.Errorf("metadata key %q has unsupported value type %T", k, v)
		}
	}
	return nil
}

// Matches 判断 m 是否满足 filter 中所有键的精确匹配（合取语义）。
// 数字比较前统一转为 float64，避免 JSON 反序列化带来的类型差异。
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok {
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// Clone 返回元数据的浅拷贝；对 nil 返回空映射。
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetString 返回字符串值，键不存在或类型不符时返回 fallback。
func (m Metadata) GetString(key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func scalarEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
