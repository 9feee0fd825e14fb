// Package pipeline 定义了教材入库的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/pkg/extractor"
	"learn-copilot-go/pkg/log"
	"learn-copilot-go/pkg/storage"
	"learn-copilot-go/pkg/tasks"
)

// Processor 封装了教材入库的所有依赖和逻辑。
type Processor struct {
	extractorClient *extractor.Client
	retrieval       service.RetrievalService
	contentRepo     repository.ContentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractorClient *extractor.Client,
	retrieval service.RetrievalService,
	contentRepo repository.ContentRepository,
) *Processor {
	return &Processor{
		extractorClient: extractorClient,
		retrieval:       retrieval,
		contentRepo:     contentRepo,
	}
}

// Process 是教材入库任务的主函数，处理失败时把上传记录置为失败状态。
func (p *Processor) Process(ctx context.Context, task tasks.ContentIngestTask) error {
	if err := p.process(ctx, task); err != nil {
		if markErr := p.contentRepo.MarkUploadFailed(task.UploadID); markErr != nil {
			log.Errorf("[Processor] 更新上传记录为失败状态时出错, UploadID: %s, Error: %v", task.UploadID, markErr)
		}
		return err
	}
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.ContentIngestTask) error {
	log.Infof("[Processor] 开始处理教材, UploadID: %s, FileName: %s", task.UploadID, task.FileName)

	// 1. 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Object: %s", task.ObjectName)
	object, err := storage.DownloadObject(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 提取章节结构
	log.Info("[Processor] 步骤2: 提取章节与页面文本")
	chapters, err := p.extractorClient.ExtractChapters(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		return fmt.Errorf("提取章节文本失败: %w", err)
	}
	if len(chapters) == 0 {
		log.Warnf("[Processor] 提取的章节内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的章节内容为空")
	}
	log.Infof("[Processor] 步骤2: 章节提取成功, 共 %d 章", len(chapters))

	// 3. 逐章逐页切块、向量化并入库
	log.Info("[Processor] 步骤3: 开始逐页入库")
	pageCount := 0
	chunkCount := 0
	for chapter, pages := range chapters {
		for page, text := range pages {
			metadata := model.Metadata{
				"subject":     task.Subject,
				"topic":       chapter,
				"chapter":     chapter,
				"page":        page,
				"source_file": task.FileName,
				"upload_id":   task.UploadID,
			}
			_, ids, err := p.retrieval.AddEducationalContent(ctx, text, metadata)
			if err != nil {
				return fmt.Errorf("入库章节 '%s' 第 %d 页失败: %w", chapter, page, err)
			}
			pageCount++
			chunkCount += len(ids)
		}
	}
	log.Infof("[Processor] 步骤3: 入库完成, pages: %d, chunks: %d", pageCount, chunkCount)

	// 4. 更新上传记录状态
	record, err := p.contentRepo.GetUploadRecord(task.UploadID)
	if err != nil {
		return fmt.Errorf("查询上传记录失败: %w", err)
	}
	if record == nil {
		return fmt.Errorf("上传记录不存在: %s", task.UploadID)
	}

	now := time.Now()
	record.Status = model.UploadStatusCompleted
	record.Chapters = len(chapters)
	record.Pages = pageCount
	record.ChunkCount = chunkCount
	record.ProcessedAt = &now
	if err := p.contentRepo.UpdateUploadRecord(record); err != nil {
		return fmt.Errorf("更新上传记录失败: %w", err)
	}

	log.Infof("[Processor] 教材处理完成, UploadID: %s", task.UploadID)
	return nil
}
