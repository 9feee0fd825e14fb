// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learn-copilot-go/internal/config"
	"learn-copilot-go/internal/handler"
	"learn-copilot-go/internal/middleware"
	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/pipeline"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/internal/vectorindex"
	"learn-copilot-go/pkg/database"
	"learn-copilot-go/pkg/embedding"
	"learn-copilot-go/pkg/extractor"
	"learn-copilot-go/pkg/kafka"
	"learn-copilot-go/pkg/llm"
	"learn-copilot-go/pkg/log"
	"learn-copilot-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.ContentUpload{}, &model.TestResult{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 4. 打开向量索引
	index, err := openIndex(cfg)
	if err != nil {
		log.Fatalf("向量索引初始化失败: %v", err)
	}
	defer index.Close()
	log.Infof("向量索引初始化成功, backend: %s", cfg.Index.Backend)

	// 5. 初始化 Repository
	contentRepo := repository.NewContentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 6. 初始化 Service (依赖注入)
	extractorClient := extractor.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	retrievalService := service.NewRetrievalService(embeddingClient, index, cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	answerService := service.NewAnswerService(retrievalService, llmClient, cfg.Tutor)
	studyService := service.NewStudyService(contentRepo, conversationRepo, llmClient)
	chatService := service.NewChatService(retrievalService, llmClient, conversationRepo)

	// 7. 初始化入库管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(extractorClient, retrievalService, contentRepo)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	contentHandler := handler.NewContentHandler(retrievalService, contentRepo)
	searchHandler := handler.NewSearchHandler(retrievalService)
	tutorHandler := handler.NewTutorHandler(answerService)
	studyHandler := handler.NewStudyHandler(studyService, contentRepo, extractorClient)
	chatHandler := handler.NewChatHandler(chatService)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		content := apiV1.Group("/content")
		{
			content.POST("/upload", contentHandler.Upload)
			content.GET("/upload/:id", contentHandler.UploadStatus)
			content.POST("", contentHandler.AddContent)
			content.GET("/stats", contentHandler.Stats)
			content.GET("/:id", contentHandler.GetContent)
			content.DELETE("/:id", contentHandler.DeleteContent)
		}

		apiV1.GET("/search", searchHandler.Search)
		apiV1.POST("/ask", tutorHandler.Ask)

		study := apiV1.Group("/study")
		{
			study.POST("/test-results/upload", studyHandler.UploadTestResult)
			study.GET("/schedule", studyHandler.Schedule)
			study.GET("/practice-questions", studyHandler.PracticeQuestions)
			study.POST("/check-answer", studyHandler.CheckAnswer)
			study.POST("/summarize", studyHandler.Summarize)
		}

		apiV1.GET("/chat", chatHandler.Handle)
	}

	// 10. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// openIndex 按配置选择向量索引后端。
func openIndex(cfg config.Config) (vectorindex.Index, error) {
	switch cfg.Index.Backend {
	case "es":
		return vectorindex.OpenES(cfg.Index.ES, cfg.Embedding.Dimensions, cfg.Index.StatsSample)
	case "local", "":
		return vectorindex.OpenLocal(cfg.Index.Path, cfg.Embedding.Dimensions, cfg.Index.StatsSample)
	default:
		return nil, fmt.Errorf("未知的索引后端: %s", cfg.Index.Backend)
	}
}
