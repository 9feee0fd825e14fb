package chunker

import (
	"strings"
	"testing"
	"time"
)

func TestChunk_Empty(t *testing.T) {
	if got := Chunk("", 100, 20); got != nil {
		t.Errorf("expected nil chunks for empty text, got %v", got)
	}
	if got := Chunk("   \n\t ", 100, 20); got != nil {
		t.Errorf("expected nil chunks for whitespace text, got %v", got)
	}
}

func TestChunk_ShortText(t *testing.T) {
	chunks := Chunk("hello world", 100, 20)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("unexpected chunk: %q", chunks[0])
	}
}

func TestChunk_BoundedLength(t *testing.T) {
	text := strings.Repeat("abcde fghij klmno pqrst uvwxy. ", 80)
	chunks := Chunk(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds chunkSize: len=%d", i, len([]rune(c)))
		}
		if strings.TrimSpace(c) != c {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
}

func TestChunk_SentenceBoundaryPastMidpoint(t *testing.T) {
	// 句号落在窗口中点之后，应成为切点
	text := "First sentence is right here padding padding. Second part continues well beyond the window edge without any stop"
	chunks := Chunk(text, 60, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at sentence boundary, got %q", chunks[0])
	}
}

func TestChunk_Coverage(t *testing.T) {
	// 无句号、无空白的文本按纯窗口切分；去掉每个后续分块的重叠前缀后
	// 应能精确重建原文（覆盖无缝隙）
	text := strings.Repeat("0123456789", 50)
	const chunkSize, overlap = 100, 20
	chunks := Chunk(text, chunkSize, overlap)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		if len(c) <= overlap {
			continue // 末尾分块可能整体落在重叠区内
		}
		rebuilt.WriteString(c[overlap:])
	}
	if rebuilt.String() != text {
		t.Errorf("reconstructed text does not match original: got %d chars, want %d",
			rebuilt.Len(), len(text))
	}
}

func TestChunk_TerminatesWithHugeOverlap(t *testing.T) {
	// overlap >= chunkSize-1 时扫描位置仍需每轮前进
	text := strings.Repeat("x", 500)
	done := make(chan []string, 1)
	go func() { done <- Chunk(text, 10, 9) }()
	select {
	case chunks := <-done:
		if len(chunks) == 0 {
			t.Error("expected chunks, got none")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chunk did not terminate")
	}
}

func TestChunkSentences_Accumulates(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine. Ten eleven twelve."
	chunks := ChunkSentences(text, 35, 2)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d: %v", len(chunks), chunks)
	}
	// 后续分块应以上一分块末尾的词作为前缀
	first := strings.Fields(chunks[0])
	carry := strings.Join(first[len(first)-2:], " ")
	if !strings.HasPrefix(chunks[1], carry) {
		t.Errorf("expected chunk 1 to start with carried words %q, got %q", carry, chunks[1])
	}
}

func TestChunkSentences_HardSplitLongSentence(t *testing.T) {
	long := strings.Repeat("word ", 60) + "end."
	chunks := ChunkSentences(long, 50, 3)
	if len(chunks) < 2 {
		t.Fatalf("expected hard split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
	}
}

func TestChunkSentences_Empty(t *testing.T) {
	if got := ChunkSentences("", 100, 5); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
}
