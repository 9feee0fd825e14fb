package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/internal/service"
	"learn-copilot-go/pkg/extractor"
	"learn-copilot-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StudyHandler 负责测验结果上传与学习规划相关接口。
type StudyHandler struct {
	studyService    service.StudyService
	contentRepo     repository.ContentRepository
	extractorClient *extractor.Client
}

// NewStudyHandler 创建一个新的 StudyHandler 实例。
func NewStudyHandler(studyService service.StudyService, contentRepo repository.ContentRepository, extractorClient *extractor.Client) *StudyHandler {
	return &StudyHandler{
		studyService:    studyService,
		contentRepo:     contentRepo,
		extractorClient: extractorClient,
	}
}

// UploadTestResult 接收测验报告文件，解析并持久化结构化结果。
func (h *StudyHandler) UploadTestResult(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 student_id"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	src, err := file.Open()
	if err != nil {
		log.Errorf("[StudyHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer src.Close()

	text, err := h.extractorClient.ExtractText(src, file.Filename)
	if err != nil {
		log.Errorf("[StudyHandler] 提取报告文本失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "提取报告文本失败"})
		return
	}

	report := service.ParseTestReport(text)
	incorrectJSON, _ := json.Marshal(report.IncorrectTopics)

	record := &model.TestResult{
		TestID:            uuid.NewString(),
		StudentID:         studentID,
		Subject:           report.Subject,
		Topic:             report.Topic,
		Score:             report.Score,
		Total:             report.Total,
		IncorrectTopics:   string(incorrectJSON),
		ParsingConfidence: report.ParsingConfidence,
	}
	if err := h.contentRepo.CreateTestResult(record); err != nil {
		log.Errorf("[StudyHandler] 保存测验结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存测验结果失败"})
		return
	}

	weakAreas := h.studyService.AnalyzeWeakAreas(c.Request.Context(), report)

	log.Infof("[StudyHandler] 测验结果解析成功, testID: %s, confidence: %.2f", record.TestID, report.ParsingConfidence)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{
		"testId":    record.TestID,
		"report":    report,
		"weakAreas": weakAreas,
	}, "message": "success"})
}

// Schedule 为学生生成个性化复习计划。
func (h *StudyHandler) Schedule(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 student_id"})
		return
	}

	studyTime, err := strconv.Atoi(c.DefaultQuery("study_time", "60"))
	if err != nil || studyTime <= 0 {
		studyTime = 60
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		days = 7
	}

	schedule, err := h.studyService.RevisionScheduleForStudent(c.Request.Context(), studentID, studyTime, days)
	if err != nil {
		log.Errorf("[StudyHandler] 生成复习计划失败: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": schedule, "message": "success"})
}

// PracticeQuestions 生成指定主题的练习题。
func (h *StudyHandler) PracticeQuestions(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 topic"})
		return
	}
	difficulty := c.DefaultQuery("difficulty", "intermediate")
	num, err := strconv.Atoi(c.DefaultQuery("num_questions", "5"))
	if err != nil {
		num = 5
	}

	questions, err := h.studyService.GeneratePracticeQuestions(c.Request.Context(), topic, difficulty, num)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{
		"topic":     topic,
		"questions": questions,
	}, "message": "success"})
}

// checkAnswerRequest 是作答批改接口的请求体。
type checkAnswerRequest struct {
	Question      string `json:"question" binding:"required"`
	StudentAnswer string `json:"studentAnswer" binding:"required"`
	CorrectAnswer string `json:"correctAnswer" binding:"required"`
}

// CheckAnswer 批改学生作答。
func (h *StudyHandler) CheckAnswer(c *gin.Context) {
	var req checkAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	feedback := h.studyService.CheckAnswer(c.Request.Context(), req.Question, req.StudentAnswer, req.CorrectAnswer)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": feedback, "message": "success"})
}

// summarizeRequest 是内容摘要接口的请求体。
type summarizeRequest struct {
	Content  string `json:"content" binding:"required"`
	MaxWords int    `json:"maxWords"`
}

// Summarize 生成教学内容摘要。
func (h *StudyHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	summary, err := h.studyService.Summarize(c.Request.Context(), req.Content, req.MaxWords)
	if err != nil {
		log.Errorf("[StudyHandler] 生成摘要失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成摘要失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"summary": summary}, "message": "success"})
}
