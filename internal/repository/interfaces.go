package repository

import (
	"context"

	"github.com/aihub/rag-ingest/internal/models"
)

// TerminalUpdate 文档进入终态时一并写入的统计字段
type TerminalUpdate struct {
	VectorCount     int
	EmbeddingStatus string
}

// DocumentStore 文档元数据存储
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uint) (*models.Document, error)
	// MarkTerminal 仅当文档仍为pending时写入终态，返回是否发生了迁移
	MarkTerminal(ctx context.Context, id uint, status string, update TerminalUpdate) (bool, error)
}

// FragmentStore 片段存储
type FragmentStore interface {
	// ReplaceForDocument 在一个事务内删除文档已有片段并写入新片段
	ReplaceForDocument(ctx context.Context, documentID uint, fragments []models.Fragment) error
	ListByDocument(ctx context.Context, documentID uint) ([]models.Fragment, error)
	// SearchSimilar 分数降序、ID升序，最多k个
	SearchSimilar(ctx context.Context, embeddingModel string, query []float32, k int) ([]models.ScoredFragment, error)
	CountByDocument(ctx context.Context, documentID uint) (int64, error)
}
