// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/pkg/kafka"
	"learn-copilot-go/pkg/log"
	"learn-copilot-go/pkg/storage"
	"learn-copilot-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContentHandler 负责教学内容的上传、入库与管理。
type ContentHandler struct {
	retrieval   service.RetrievalService
	contentRepo repository.ContentRepository
}

// NewContentHandler 创建一个新的 ContentHandler 实例。
func NewContentHandler(retrieval service.RetrievalService, contentRepo repository.ContentRepository) *ContentHandler {
	return &ContentHandler{
		retrieval:   retrieval,
		contentRepo: contentRepo,
	}
}

// Upload 接收教材文件，存入 MinIO 并投递异步入库任务。
func (h *ContentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}
	subject := c.PostForm("subject")

	uploadID := uuid.NewString()
	objectName := fmt.Sprintf("uploads/%s%s", uploadID, filepath.Ext(file.Filename))

	src, err := file.Open()
	if err != nil {
		log.Errorf("[ContentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer src.Close()

	if err := storage.UploadObject(c.Request.Context(), objectName, src, file.Size, file.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败"})
		return
	}

	record := &model.ContentUpload{
		UploadID:   uploadID,
		FileName:   file.Filename,
		ObjectName: objectName,
		Subject:    subject,
		Status:     model.UploadStatusPending,
	}
	if err := h.contentRepo.CreateUploadRecord(record); err != nil {
		log.Errorf("[ContentHandler] 创建上传记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建上传记录失败"})
		return
	}

	task := tasks.ContentIngestTask{
		UploadID:   uploadID,
		ObjectName: objectName,
		FileName:   file.Filename,
		Subject:    subject,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		log.Errorf("[ContentHandler] 投递入库任务失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "投递入库任务失败"})
		return
	}

	log.Infof("[ContentHandler] 上传受理成功, uploadID: %s, file: %s", uploadID, file.Filename)
	c.JSON(http.StatusAccepted, gin.H{"code": 202, "data": gin.H{"uploadId": uploadID}, "message": "文件已受理，正在后台处理"})
}

// UploadStatus 查询上传记录的处理状态。
func (h *ContentHandler) UploadStatus(c *gin.Context) {
	uploadID := c.Param("id")
	record, err := h.contentRepo.GetUploadRecord(uploadID)
	if err != nil {
		log.Errorf("[ContentHandler] 查询上传记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询上传记录失败"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "上传记录不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": record, "message": "success"})
}

// addContentRequest 是直接文本入库的请求体。
type addContentRequest struct {
	Content  string         `json:"content" binding:"required"`
	Metadata model.Metadata `json:"metadata"`
}

// AddContent 直接入库一段教学文本，同步完成切块与向量化。
func (h *ContentHandler) AddContent(c *gin.Context) {
	var req addContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if err := req.Metadata.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parentID, chunkIDs, err := h.retrieval.AddEducationalContent(c.Request.Context(), req.Content, req.Metadata)
	if err != nil {
		log.Errorf("[ContentHandler] 内容入库失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内容入库失败"})
		return
	}
	if parentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "内容为空"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"contentId": parentID, "chunkIds": chunkIDs}, "message": "success"})
}

// GetContent 按块 ID 查询已索引的内容。
func (h *ContentHandler) GetContent(c *gin.Context) {
	id := c.Param("id")
	entry, err := h.retrieval.Get(c.Request.Context(), id)
	if err != nil {
		log.Errorf("[ContentHandler] 查询索引内容失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "内容不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{
		"id":       entry.ID,
		"text":     entry.Text,
		"metadata": entry.Metadata,
	}, "message": "success"})
}

// DeleteContent 按块 ID 删除已索引的内容。
func (h *ContentHandler) DeleteContent(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.retrieval.Delete(c.Request.Context(), id)
	if err != nil {
		log.Errorf("[ContentHandler] 删除索引内容失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除失败"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "内容不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"id": id}, "message": "success"})
}

// Stats 返回索引的近似统计信息。
func (h *ContentHandler) Stats(c *gin.Context) {
	stats, err := h.retrieval.Stats(c.Request.Context())
	if err != nil {
		log.Errorf("[ContentHandler] 查询索引统计失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询统计失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": stats, "message": "success"})
}
