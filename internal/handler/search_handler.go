package handler

import (
	"net/http"
	"strconv"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了语义检索相关的处理器。
type SearchHandler struct {
	retrieval service.RetrievalService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrieval service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search 是处理语义检索请求的 Gin 处理函数。
// 支持 subject、topic、difficulty_level 三个精确匹配过滤参数。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	topK, err := strconv.Atoi(c.DefaultQuery("topK", "5"))
	if err != nil || topK <= 0 {
		topK = 5
	}

	filter := model.Metadata{}
	for _, key := range []string{"subject", "topic", "difficulty_level"} {
		if v := c.Query(key); v != "" {
			filter[key] = v
		}
	}
	if len(filter) == 0 {
		filter = nil
	}

	results, err := h.retrieval.Search(c.Request.Context(), query, topK, filter)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{
		"results":    results,
		"confidence": h.retrieval.Confidence(results),
	}, "message": "success"})
}
