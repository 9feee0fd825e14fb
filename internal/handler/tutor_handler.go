package handler

import (
	"net/http"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// TutorHandler 负责基于检索上下文的问答接口。
type TutorHandler struct {
	answerService service.AnswerService
}

// NewTutorHandler 创建一个新的 TutorHandler 实例。
func NewTutorHandler(answerService service.AnswerService) *TutorHandler {
	return &TutorHandler{answerService: answerService}
}

// askRequest 是问答接口的请求体。
type askRequest struct {
	Question string         `json:"question" binding:"required"`
	TopK     int            `json:"topK"`
	Filter   model.Metadata `json:"filter"`
}

// Ask 处理一次检索增强问答请求。
func (h *TutorHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	answer, err := h.answerService.Answer(c.Request.Context(), req.Question, req.TopK, req.Filter)
	if err != nil {
		log.Errorf("[TutorHandler] 问答失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": answer, "message": "success"})
}
