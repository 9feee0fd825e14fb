package service

import (
	"context"
	"fmt"
	"strings"

	"learn-copilot-go/internal/config"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/pkg/llm"
	"learn-copilot-go/pkg/log"
)

const (
	// 上下文块取前 contextSources 条检索结果，每条截断到 contextExcerptLen 字符。
	contextSources    = 3
	contextExcerptLen = 300

	defaultNoResultText = "I could not find relevant study material for this question. Try uploading notes on this topic first."
)

// AnswerService 接口定义了基于检索上下文的问答生成。
type AnswerService interface {
	// Answer 检索相关内容并生成带来源与置信度的回答。
	Answer(ctx context.Context, question string, k int, filter model.Metadata) (*model.TutorAnswer, error)
}

type answerService struct {
	retrieval RetrievalService
	llmClient llm.Client
	tutorCfg  config.TutorConfig
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(retrieval RetrievalService, llmClient llm.Client, tutorCfg config.TutorConfig) AnswerService {
	return &answerService{
		retrieval: retrieval,
		llmClient: llmClient,
		tutorCfg:  tutorCfg,
	}
}

// Answer 执行检索增强问答。
// 无检索结果时直接返回固定提示且不调用模型；模型调用失败时降级为基于
// 检索摘录的模板回答，置信度保持检索置信度不变。
func (s *answerService) Answer(ctx context.Context, question string, k int, filter model.Metadata) (*model.TutorAnswer, error) {
	log.Infof("[AnswerService] 开始处理问题: '%s'", question)

	results, err := s.retrieval.Search(ctx, question, k, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	if len(results) == 0 {
		log.Infof("[AnswerService] 未检索到相关内容, 返回固定提示")
		return &model.TutorAnswer{
			Answer:     s.noResultText(),
			Sources:    []model.SearchResult{},
			Confidence: 0,
		}, nil
	}

	confidence := s.retrieval.Confidence(results)
	contextBlock := buildContextBlock(results)

	prompt := s.buildPrompt(question, contextBlock)
	answer, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		// 模型不可用时退回到基于摘录的模板回答，检索置信度保持不变
		log.Errorf("[AnswerService] 生成回答失败, 使用降级回答: %v", err)
		answer = fallbackAnswer(question, results)
	}

	return &model.TutorAnswer{
		Answer:     answer,
		Sources:    results,
		Confidence: confidence,
	}, nil
}

func (s *answerService) noResultText() string {
	if s.tutorCfg.NoResultText != "" {
		return s.tutorCfg.NoResultText
	}
	return defaultNoResultText
}

func (s *answerService) buildPrompt(question, contextBlock string) string {
	rules := s.tutorCfg.Rules
	if rules == "" {
		rules = "You are an expert tutor helping a student. Answer the question using ONLY the provided context.\n" +
			"If the answer isn't in the context, say you don't know. Be precise and mention your sources.\n" +
			"Start with a direct answer, explain key concepts, and keep it under 200 words."
	}
	return fmt.Sprintf("%s\n\nQUESTION: %s\n\nCONTEXT:\n%s", rules, question, contextBlock)
}

// buildContextBlock 将前三条结果拼成带来源标注的上下文块，超长摘录截断并加省略号。
func buildContextBlock(results []model.SearchResult) string {
	n := len(results)
	if n > contextSources {
		n = contextSources
	}

	var sb strings.Builder
	for i, r := range results[:n] {
		excerpt := r.Text
		if runes := []rune(excerpt); len(runes) > contextExcerptLen {
			excerpt = string(runes[:contextExcerptLen]) + "..."
		}
		label := r.Metadata.GetString("topic", r.ID)
		fmt.Fprintf(&sb, "Source %d (%s):\n%s\n\n", i+1, label, excerpt)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// fallbackAnswer 在模型不可用时给出基于最相关摘录的简单回答。
func fallbackAnswer(question string, results []model.SearchResult) string {
	excerpt := results[0].Text
	if runes := []rune(excerpt); len(runes) > contextExcerptLen {
		excerpt = string(runes[:contextExcerptLen]) + "..."
	}
	return fmt.Sprintf("Based on the study material, here is the most relevant content for \"%s\":\n\n%s", question, excerpt)
}
