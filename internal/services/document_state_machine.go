package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
	"github.com/aihub/rag-ingest/internal/repository"
)

// 状态转换规则，终态没有出边
var documentTransitions = map[string][]string{
	models.DocumentStatusPending: {
		models.DocumentStatusDone,
		models.DocumentStatusFailed,
	},
}

// DocumentStateMachine 文档状态机
type DocumentStateMachine struct {
	documents repository.DocumentStore
	logger    *zap.Logger
}

// NewDocumentStateMachine 创建文档状态机实例
func NewDocumentStateMachine(documents repository.DocumentStore, logger *zap.Logger) *DocumentStateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStateMachine{documents: documents, logger: logger}
}

// CanTransition 检查是否可以进行状态转换
func (sm *DocumentStateMachine) CanTransition(from, to string) bool {
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 从pending写入终态；文档已不在pending时返回false且不报错
func (sm *DocumentStateMachine) Transition(ctx context.Context, documentID uint, to string, update repository.TerminalUpdate) (bool, error) {
	if !sm.CanTransition(models.DocumentStatusPending, to) {
		return false, apperrors.NewValidationError(fmt.Sprintf("invalid transition from %s to %s", models.DocumentStatusPending, to))
	}

	changed, err := sm.documents.MarkTerminal(ctx, documentID, to, update)
	if err != nil {
		return false, err
	}
	if !changed {
		sm.logger.Warn("document already left pending, status not changed",
			zap.Uint("document_id", documentID),
			zap.String("to", to))
		return false, nil
	}

	sm.logger.Info("document status transitioned",
		zap.Uint("document_id", documentID),
		zap.String("from", models.DocumentStatusPending),
		zap.String("to", to),
		zap.Int("vector_count", update.VectorCount))
	return true, nil
}
