package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/metrics"
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

// RetrievalService 问题向量化后在同模型片段中做余弦相似度检索
type RetrievalService struct {
	embedder knowledge.Embedder
	index    knowledge.VectorIndex
	defaultK int
	maxK     int
	metrics  *metrics.PipelineMetrics
	logger   *zap.Logger
}

// NewRetrievalService 创建检索服务
func NewRetrievalService(
	embedder knowledge.Embedder,
	index knowledge.VectorIndex,
	cfg config.RetrievalConfig,
	m *metrics.PipelineMetrics,
	logger *zap.Logger,
) *RetrievalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultK, maxK := cfg.DefaultK, cfg.MaxK
	if defaultK <= 0 {
		defaultK = defaultTopK
	}
	if maxK <= 0 {
		maxK = maxTopK
	}
	if maxK < defaultK {
		maxK = defaultK
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		defaultK: defaultK,
		maxK:     maxK,
		metrics:  m,
		logger:   logger,
	}
}

// Search k<=0时使用默认值，超过上限时截断；没有任何向量时返回空结果
func (s *RetrievalService) Search(ctx context.Context, question string, k int) ([]knowledge.ScoredFragment, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question is required")
	}
	k = s.effectiveK(k)
	started := time.Now()

	query, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.NewEmbeddingError("failed to embed question").WithCause(err)
		}
		return nil, err
	}

	results, err := s.index.Search(ctx, s.embedder.Model(), query, k)
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.NewDatabaseError("similarity query failed").WithCause(err)
		}
		s.logger.Error("similarity query failed",
			zap.String("index", s.index.Name()),
			zap.Error(err))
		return nil, err
	}
	if results == nil {
		results = []knowledge.ScoredFragment{}
	}

	s.metrics.Retrieval(started, len(results))
	s.logger.Debug("search completed",
		zap.String("index", s.index.Name()),
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(started)))
	return results, nil
}

func (s *RetrievalService) effectiveK(k int) int {
	if k <= 0 {
		return s.defaultK
	}
	if k > s.maxK {
		return s.maxK
	}
	return k
}
