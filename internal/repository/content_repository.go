// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"learn-copilot-go/internal/model"

	"gorm.io/gorm"
)

// ContentRepository 接口定义了教材上传与测验结果相关的数据持久化操作。
type ContentRepository interface {
	// ContentUpload operations
	CreateUploadRecord(record *model.ContentUpload) error
	GetUploadRecord(uploadID string) (*model.ContentUpload, error)
	UpdateUploadRecord(record *model.ContentUpload) error
	MarkUploadFailed(uploadID string) error
	ListUploads() ([]model.ContentUpload, error)

	// TestResult operations
	CreateTestResult(record *model.TestResult) error
	GetTestResult(testID string) (*model.TestResult, error)
	FindTestResultsByStudent(studentID string) ([]model.TestResult, error)
}

// contentRepository 是 ContentRepository 接口的 GORM 实现。
type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository 创建一个新的 ContentRepository 实例。
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

// CreateUploadRecord 在数据库中创建一个新的教材上传记录。
func (r *contentRepository) CreateUploadRecord(record *model.ContentUpload) error {
	return r.db.Create(record).Error
}

// GetUploadRecord 根据 uploadID 检索上传记录，未找到时返回 (nil, nil)。
func (r *contentRepository) GetUploadRecord(uploadID string) (*model.ContentUpload, error) {
	var record model.ContentUpload
	err := r.db.Where("upload_id = ?", uploadID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateUploadRecord 更新一个上传记录。
func (r *contentRepository) UpdateUploadRecord(record *model.ContentUpload) error {
	return r.db.Save(record).Error
}

// MarkUploadFailed 将指定上传记录置为失败状态。
func (r *contentRepository) MarkUploadFailed(uploadID string) error {
	return r.db.Model(&model.ContentUpload{}).
		Where("upload_id = ?", uploadID).
		Update("status", model.UploadStatusFailed).Error
}

// ListUploads 返回所有上传记录，按创建时间倒序。
func (r *contentRepository) ListUploads() ([]model.ContentUpload, error) {
	var records []model.ContentUpload
	err := r.db.Order("created_at desc").Find(&records).Error
	return records, err
}

// CreateTestResult 在数据库中创建一条测验结果记录。
func (r *contentRepository) CreateTestResult(record *model.TestResult) error {
	return r.db.Create(record).Error
}

// GetTestResult 根据 testID 检索测验结果，未找到时返回 (nil, nil)。
func (r *contentRepository) GetTestResult(testID string) (*model.TestResult, error) {
	var record model.TestResult
	err := r.db.Where("test_id = ?", testID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindTestResultsByStudent 查找指定学生的所有测验结果，按创建时间倒序。
func (r *contentRepository) FindTestResultsByStudent(studentID string) ([]model.TestResult, error) {
	var records []model.TestResult
	err := r.db.Where("student_id = ?", studentID).Order("created_at desc").Find(&records).Error
	return records, err
}
