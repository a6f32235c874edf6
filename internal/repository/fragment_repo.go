package repository

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
)

const fragmentBatchSize = 200

// FragmentRepository 片段仓库实现
type FragmentRepository struct {
	db *gorm.DB
}

// NewFragmentRepository 创建片段仓库
func NewFragmentRepository(db *gorm.DB) *FragmentRepository {
	return &FragmentRepository{db: db}
}

// ReplaceForDocument 重复投递时先清理上一次的残留片段
func (r *FragmentRepository) ReplaceForDocument(ctx context.Context, documentID uint, fragments []models.Fragment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.Fragment{}).Error; err != nil {
			return err
		}
		if len(fragments) == 0 {
			return nil
		}
		return tx.CreateInBatches(fragments, fragmentBatchSize).Error
	})
	if err != nil {
		return apperrors.NewDatabaseError("failed to persist fragments").WithCause(err)
	}
	return nil
}

// ListByDocument 按片段序号返回文档的全部片段
func (r *FragmentRepository) ListByDocument(ctx context.Context, documentID uint) ([]models.Fragment, error) {
	var fragments []models.Fragment
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("fragment_index ASC").
		Find(&fragments).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to list fragments").WithCause(err)
	}
	return fragments, nil
}

// similarRow 相似度查询的扫描目标
type similarRow struct {
	models.Fragment
	Distance float64 `gorm:"column:distance"`
}

// SearchSimilar 在数据库内按余弦距离升序、ID升序取指定模型的前k个片段。
// 零向量的距离为NaN，按距离1处理，与CosineSimilarity对零向量返回0一致
func (r *FragmentRepository) SearchSimilar(ctx context.Context, embeddingModel string, query []float32, k int) ([]models.ScoredFragment, error) {
	if k <= 0 || len(query) == 0 {
		return []models.ScoredFragment{}, nil
	}

	var rows []similarRow
	err := r.db.WithContext(ctx).Raw(`SELECT id, document_id, fragment_index, content, chunk_size, embedding_model, created_by, created_at,
	COALESCE(NULLIF(vector <=> ?, 'NaN'::float8), 1) AS distance
	FROM fragments
	WHERE vector IS NOT NULL AND embedding_model = ?
	ORDER BY distance ASC, id ASC
	LIMIT ?`, pgvector.NewVector(query), embeddingModel, k).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("similarity query failed").WithCause(err)
	}

	scored := make([]models.ScoredFragment, len(rows))
	for i, row := range rows {
		scored[i] = models.ScoredFragment{Fragment: row.Fragment, Score: 1 - row.Distance}
	}
	return scored, nil
}

// CountByDocument 统计文档片段数量
func (r *FragmentRepository) CountByDocument(ctx context.Context, documentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Fragment{}).Where("document_id = ?", documentID).Count(&count).Error
	if err != nil {
		return 0, apperrors.NewDatabaseError("failed to count fragments").WithCause(err)
	}
	return count, nil
}
