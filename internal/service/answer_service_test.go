package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"learn-copilot-go/internal/config"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM 记录收到的 prompt 并返回固定回答。
type stubLLM struct {
	lastPrompt string
	reply      string
	fail       bool
	calls      int
}

func (s *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.fail {
		return "", errors.New("llm unavailable")
	}
	return s.reply, nil
}

func (s *stubLLM) GenerateMessages(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	return s.Generate(ctx, prompt)
}

func (s *stubLLM) StreamChat(_ context.Context, _ string, _ llm.MessageWriter) error {
	return errors.New("not implemented")
}

func (s *stubLLM) StreamChatMessages(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, _ llm.MessageWriter) error {
	return errors.New("not implemented")
}

func newAnswerFixture(t *testing.T) (AnswerService, RetrievalService, *stubLLM) {
	t.Helper()
	retrieval, _, _ := newTestService(t)
	llmStub := &stubLLM{reply: "Motion is a change in position over time."}
	answer := NewAnswerService(retrieval, llmStub, config.TutorConfig{})
	return answer, retrieval, llmStub
}

func TestAnswerService_NoResults(t *testing.T) {
	answer, _, llmStub := newAnswerFixture(t)

	resp, err := answer.Answer(context.Background(), "what is motion", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultNoResultText, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Confidence)
	// 无结果时不应调用模型
	assert.Zero(t, llmStub.calls)
}

func TestAnswerService_Answer(t *testing.T) {
	answer, retrieval, llmStub := newAnswerFixture(t)
	ctx := context.Background()

	_, err := retrieval.AddDocument(ctx, "physics notes on motion and velocity", model.Metadata{"topic": "motion"})
	require.NoError(t, err)

	resp, err := answer.Answer(ctx, "physics motion", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "Motion is a change in position over time.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.InDelta(t, 1.0, resp.Confidence, 1e-9)

	// prompt 带上了问题与来源标注的上下文
	assert.Contains(t, llmStub.lastPrompt, "QUESTION: physics motion")
	assert.Contains(t, llmStub.lastPrompt, "Source 1 (motion):")
	assert.Contains(t, llmStub.lastPrompt, "physics notes on motion")
}

func TestAnswerService_LLMFailureFallback(t *testing.T) {
	answer, retrieval, llmStub := newAnswerFixture(t)
	llmStub.fail = true
	ctx := context.Background()

	_, err := retrieval.AddDocument(ctx, "physics notes on motion and velocity", nil)
	require.NoError(t, err)

	resp, err := answer.Answer(ctx, "physics motion", 5, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "physics notes on motion")
	// 降级回答保持检索置信度
	assert.InDelta(t, 1.0, resp.Confidence, 1e-9)
}

func TestBuildContextBlock(t *testing.T) {
	long := strings.Repeat("x", 400)
	results := []model.SearchResult{
		{ID: "a", Text: long, Metadata: model.Metadata{"topic": "waves"}},
		{ID: "b", Text: "short"},
		{ID: "c", Text: "third"},
		{ID: "d", Text: "never included"},
	}

	block := buildContextBlock(results)
	assert.Contains(t, block, "Source 1 (waves):")
	assert.Contains(t, block, strings.Repeat("x", 300)+"...")
	assert.NotContains(t, block, strings.Repeat("x", 301))
	assert.Contains(t, block, "Source 2 (b):")
	assert.Contains(t, block, "Source 3 (c):")
	assert.NotContains(t, block, "never included")
}
