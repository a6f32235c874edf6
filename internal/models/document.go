package models

import (
	"time"

	"gorm.io/gorm"
)

// 文档类型
const (
	DocumentTypePDF  = "pdf"
	DocumentTypeDOCX = "docx"
	DocumentTypeTXT  = "txt"
)

// 文档状态，pending 只能迁移到 done 或 failed
const (
	DocumentStatusPending = "pending"
	DocumentStatusDone    = "done"
	DocumentStatusFailed  = "failed"
)

// 向量化状态
const (
	EmbeddingStatusPending = "pending"
	EmbeddingStatusDone    = "done"
	EmbeddingStatusSkipped = "skipped"
	EmbeddingStatusFailed  = "failed"
)

// Document 上传的原始文档
type Document struct {
	ID              uint           `gorm:"primaryKey;column:id" json:"id"`
	Title           string         `gorm:"column:title;size:255;not null" json:"title"`
	Type            string         `gorm:"column:type;size:10;not null" json:"type"`
	Status          string         `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	Path            *string        `gorm:"column:path;size:255" json:"path,omitempty"`
	Size            int64          `gorm:"column:size;not null" json:"size"`
	CreatedBy       uint           `gorm:"column:created_by;not null" json:"created_by"`
	EmbeddingStatus string         `gorm:"column:embedding_status;size:20;default:pending" json:"embedding_status"`
	VectorCount     int            `gorm:"column:vector_count;default:0" json:"vector_count"`
	Hash            string         `gorm:"column:hash;size:64;index" json:"hash"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	Fragments []Fragment `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// BlobKey 返回对象存储键，未上传时为空
func (d *Document) BlobKey() string {
	if d.Path == nil {
		return ""
	}
	return *d.Path
}

// IsTerminal 是否已处于终态
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusDone || d.Status == DocumentStatusFailed
}
