// Package chunker 将长文本切分为适合向量化的有界分块。
package chunker

import (
	"regexp"
	"strings"
)

// 默认分块参数，与配置中的 chunking 节对应。
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// Chunk 按固定字符窗口切分文本，相邻窗口重叠 overlap 个字符。
// 当窗口右缘落在文本内部时，从右缘向左回溯最近的句号作为切点，
// 但只接受落在窗口中点之后的句号，避免截断句子的同时限制最坏分块长度。
// 每个分块去除首尾空白，为空则丢弃。空文本返回 nil。
func Chunk(text string, chunkSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// 回溯句子边界，仅接受窗口中点之后的切点
			for j := end - 1; j > start+chunkSize/2; j-- {
				if runes[j] == '.' {
					end = j + 1
					break
				}
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(runes) {
			break
		}

		// 扫描位置每轮至少前进一个字符，防止 overlap 过大导致死循环
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// ChunkSentences 按句子边界切分：逐句累积，当加入下一句会超出 maxChunkSize
// 时开启新分块，并把上一分块末尾 overlapWords 个词作为前缀带入（词级重叠）。
// 单句超过 maxChunkSize 时退化为按词硬切，这些子分块不做句子级重叠。
func ChunkSentences(text string, maxChunkSize, overlapWords int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	if overlapWords < 0 {
		overlapWords = 0
	}

	sentences := sentenceRe.FindAllString(text, -1)
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, " "))
		cur = nil
		curLen = 0
	}

	for _, s := range sentences {
		if s == "" {
			continue
		}

		// 超长单句：先落盘当前分块，再按词硬切
		if len(s) > maxChunkSize {
			flush()
			chunks = append(chunks, splitByWords(s, maxChunkSize)...)
			continue
		}

		if curLen > 0 && curLen+1+len(s) > maxChunkSize {
			prev := strings.Join(cur, " ")
			flush()
			if carry := lastWords(prev, overlapWords); carry != "" {
				cur = append(cur, carry)
				curLen = len(carry)
			}
			// 极端情况下前缀加新句仍超限，直接放弃前缀
			if curLen > 0 && curLen+1+len(s) > maxChunkSize {
				cur = nil
				curLen = 0
			}
		}

		cur = append(cur, s)
		if curLen == 0 {
			curLen = len(s)
		} else {
			curLen += 1 + len(s)
		}
	}
	flush()
	return chunks
}

// splitByWords 将超长句按词贪心分组，每组拼接后不超过 limit 个字符。
func splitByWords(s string, limit int) []string {
	words := strings.Fields(s)
	var groups []string
	var cur []string
	curLen := 0
	for _, w := range words {
		add := len(w)
		if curLen > 0 {
			add++
		}
		if curLen+add > limit && len(cur) > 0 {
			groups = append(groups, strings.Join(cur, " "))
			cur = nil
			curLen = 0
			add = len(w)
		}
		cur = append(cur, w)
		curLen += add
	}
	if len(cur) > 0 {
		groups = append(groups, strings.Join(cur, " "))
	}
	return groups
}

// lastWords 返回 s 末尾 n 个词组成的字符串，n<=0 时返回空串。
func lastWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
