package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
)

// DocumentRepository 文档仓库实现
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓库
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create 创建文档
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return apperrors.NewDatabaseError("failed to create document").WithCause(err)
	}
	return nil
}

// GetByID 根据ID获取文档
func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document %d", id))
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to load document").WithCause(err)
	}
	return &doc, nil
}

// MarkTerminal 条件更新保证状态单调
func (r *DocumentRepository) MarkTerminal(ctx context.Context, id uint, status string, update TerminalUpdate) (bool, error) {
	if status != models.DocumentStatusDone && status != models.DocumentStatusFailed {
		return false, apperrors.NewValidationError(fmt.Sprintf("status %q is not terminal", status))
	}

	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status = ?", id, models.DocumentStatusPending).
		Updates(map[string]interface{}{
			"status":           status,
			"vector_count":     update.VectorCount,
			"embedding_status": update.EmbeddingStatus,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, apperrors.NewDatabaseError("failed to update document status").WithCause(result.Error)
	}
	return result.RowsAffected > 0, nil
}
