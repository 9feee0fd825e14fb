// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"learn-copilot-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ConversationRepository 定义了对话历史与计划缓存的操作接口。
type ConversationRepository interface {
	GetOrCreateConversationID(ctx context.Context, studentID string) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error

	// 复习计划缓存，按学生维度存取
	CacheSchedule(ctx context.Context, studentID string, schedule *model.RevisionSchedule) error
	GetCachedSchedule(ctx context.Context, studentID string) (*model.RevisionSchedule, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// GetOrCreateConversationID 获取或创建一个新的对话ID。
func (r *redisConversationRepository) GetOrCreateConversationID(ctx context.Context, studentID string) (string, error) {
	userKey := fmt.Sprintf("student:%s:current_conversation", studentID)
	convID, err := r.redisClient.Get(ctx, userKey).Result()
	if err == redis.Nil {
		convID = uuid.NewString()
		if err := r.redisClient.Set(ctx, userKey, convID, 7*24*time.Hour).Err(); err != nil {
			return "", fmt.Errorf("failed to set conversation id: %w", err)
		}
		return convID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	return convID, nil
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	key := fmt.Sprintf("conversation:%s", conversationID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateConversationHistory 在 Redis 中更新对话历史记录。
func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error {
	key := fmt.Sprintf("conversation:%s", conversationID)
	// 保留最近 20 条
	if len(messages) > 20 {
		messages = messages[len(messages)-20:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, key, jsonData, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// CacheSchedule 缓存学生的复习计划，一天内重复请求直接命中缓存。
func (r *redisConversationRepository) CacheSchedule(ctx context.Context, studentID string, schedule *model.RevisionSchedule) error {
	key := fmt.Sprintf("schedule:%s", studentID)
	jsonData, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	if err := r.redisClient.Set(ctx, key, jsonData, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache schedule: %w", err)
	}
	return nil
}

// GetCachedSchedule 读取缓存的复习计划，未命中时返回 (nil, nil)。
func (r *redisConversationRepository) GetCachedSchedule(ctx context.Context, studentID string) (*model.RevisionSchedule, error) {
	key := fmt.Sprintf("schedule:%s", studentID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached schedule: %w", err)
	}
	var schedule model.RevisionSchedule
	if err := json.Unmarshal([]byte(jsonData), &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached schedule: %w", err)
	}
	return &schedule, nil
}
