package llm

import (
	"encoding/json"
	"strings"
)

// ExtractObject 从模型自由文本回复中截取首个 '{' 与末个 '}' 之间的内容并反序列化到 v。
// 模型常在 JSON 前后附带说明或 markdown 代码块标记，此处只取中间的 JSON 主体。
// 截取失败或反序列化失败时返回 false，调用方应使用自己的降级逻辑。
func ExtractObject(text string, v interface{}) bool {
	return extract(text, '{', '}', v)
}

// ExtractArray 同 ExtractObject，但截取首个 '[' 与末个 ']' 之间的内容。
func ExtractArray(text string, v interface{}) bool {
	return extract(text, '[', ']', v)
}

func extract(text string, opening, closing byte, v interface{}) bool {
	start := strings.IndexByte(text, opening)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}
