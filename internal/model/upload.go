// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 上传记录的处理状态。
const (
	UploadStatusPending   = 0
	UploadStatusCompleted = 1
	UploadStatusFailed    = 2
)

// ContentUpload 定义了 content_uploads 表的 ORM 模型。
// 它记录每份上传教材的元数据与异步处理状态。
type ContentUpload struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UploadID    string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"uploadId"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName  string     `gorm:"type:varchar(255);not null" json:"objectName"`
	Subject     string     `gorm:"type:varchar(100)" json:"subject"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: pending, 1: completed, 2: failed
	Chapters    int        `gorm:"not null;default:0" json:"chapters"`
	Pages       int        `gorm:"not null;default:0" json:"pages"`
	ChunkCount  int        `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ContentUpload) TableName() string {
	return "content_uploads"
}

// TestResult 定义了 test_results 表的 ORM 模型，存储解析后的测验结果。
type TestResult struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TestID            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"testId"`
	StudentID         string    `gorm:"type:varchar(64);not null;index" json:"studentId"`
	Subject           string    `gorm:"type:varchar(100)" json:"subject"`
	Topic             string    `gorm:"type:varchar(100)" json:"topic"`
	Score             int       `gorm:"not null" json:"score"`
	Total             int       `gorm:"not null" json:"total"`
	IncorrectTopics   string    `gorm:"type:text" json:"incorrectTopics"` // JSON 数组
	ParsingConfidence float64   `gorm:"not null;default:0" json:"parsingConfidence"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TestResult) TableName() string {
	return "test_results"
}
