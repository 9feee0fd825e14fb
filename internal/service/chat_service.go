package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learn-copilot-go/internal/config"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/pkg/llm"
	"learn-copilot-go/pkg/log"

	"github.com/gorilla/websocket"
)

// ChatService 定义了流式辅导对话的接口。
type ChatService interface {
	StreamResponse(ctx context.Context, query, studentID string, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	retrieval        RetrievalService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retrieval RetrievalService, llmClient llm.Client, conversationRepo repository.ConversationRepository) ChatService {
	return &chatService{
		retrieval:        retrieval,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
	}
}

// StreamResponse 协调 RAG 流程并流式传输模型响应。
func (s *chatService) StreamResponse(ctx context.Context, query, studentID string, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 检索相关教学内容作为上下文（提升覆盖度：topK=10）
	results, err := s.retrieval.Search(ctx, query, 10, nil)
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 2. 构建 system 消息与历史
	contextText := s.buildContextText(results)
	systemMsg := s.buildSystemMessage(contextText)
	history, err := s.loadHistory(ctx, studentID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		history = []model.ChatMessage{}
	}
	messages := s.composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 流式调用模型
	gen := s.buildGenerationParams()
	llmMsgs := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if err := s.llmClient.StreamChatMessages(ctx, llmMsgs, gen, interceptor); err != nil {
		return err
	}

	// 4. 发送完成通知，并将对话保存到 Redis
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，即使原始请求被取消也要保存已生成的答案
		if err := s.addMessageToConversation(context.Background(), studentID, query, fullAnswer); err != nil {
			// 只记录错误，流式响应已经成功
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return nil
}

// buildContextText 把检索结果拼成带编号与主题标注的上下文文本。
func (s *chatService) buildContextText(results []model.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	// 与 chunkSize 对齐，尽量不截断分块内容
	const maxSnippetLen = 1000
	var contextBuilder strings.Builder
	for i, r := range results {
		snippet := r.Text
		if runes := []rune(snippet); len(runes) > maxSnippetLen {
			snippet = string(runes[:maxSnippetLen]) + "…"
		}
		label := r.Metadata.GetString("topic", "unknown")
		contextBuilder.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, label, snippet))
	}
	return contextBuilder.String()
}

func (s *chatService) buildSystemMessage(contextText string) string {
	rules := config.Conf.Tutor.Rules
	if rules == "" {
		rules = "You are a patient tutor. Answer using the reference material below. " +
			"If the material does not cover the question, say so and suggest what to upload."
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n<<REF>>\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := config.Conf.Tutor.NoResultText
		if noRes == "" {
			noRes = defaultNoResultText
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString("<<END>>")
	return sys.String()
}

func (s *chatService) loadHistory(ctx context.Context, studentID string) ([]model.ChatMessage, error) {
	convID, err := s.conversationRepo.GetOrCreateConversationID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, convID)
}

func (s *chatService) composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// addMessageToConversation 把问答追加到 Redis 中的对话历史。
func (s *chatService) addMessageToConversation(ctx context.Context, studentID, question, answer string) error {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to get or create conversation ID: %w", err)
	}

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}

	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)

	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
