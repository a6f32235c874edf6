package knowledge

import (
	"context"

	"github.com/aihub/rag-ingest/internal/models"
)

// VectorIndex 近邻检索后端
type VectorIndex interface {
	// Index 写入片段向量，片段须已持久化并带有ID
	Index(ctx context.Context, fragments []models.Fragment) error
	Search(ctx context.Context, embeddingModel string, query []float32, k int) ([]ScoredFragment, error)
	Name() string
}

// SimilaritySearcher 在元数据库内执行相似度查询
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, embeddingModel string, query []float32, k int) ([]models.ScoredFragment, error)
}

// StoreIndex 使用元数据库的pgvector列检索
type StoreIndex struct {
	fragments SimilaritySearcher
}

// NewStoreIndex 创建基于元数据库的索引
func NewStoreIndex(fragments SimilaritySearcher) *StoreIndex {
	return &StoreIndex{fragments: fragments}
}

// Index 向量随片段一起入库，无需额外写入
func (s *StoreIndex) Index(context.Context, []models.Fragment) error {
	return nil
}

func (s *StoreIndex) Search(ctx context.Context, embeddingModel string, query []float32, k int) ([]ScoredFragment, error) {
	return s.fragments.SearchSimilar(ctx, embeddingModel, query, k)
}

func (s *StoreIndex) Name() string {
	return "postgres"
}
