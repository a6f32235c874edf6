//go:build !cgo

package knowledge

import (
	"context"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// FastEmbedEmbedder 未启用cgo时不可用
type FastEmbedEmbedder struct{}

func NewFastEmbedEmbedder(EmbedderOptions) (*FastEmbedEmbedder, error) {
	return nil, apperrors.NewConfigError("fastembed not available: binary built without cgo")
}

func (e *FastEmbedEmbedder) EmbedMany(context.Context, []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingError("fastembed not available")
}

func (e *FastEmbedEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, apperrors.NewEmbeddingError("fastembed not available")
}

func (e *FastEmbedEmbedder) Dimensions() int { return 0 }

func (e *FastEmbedEmbedder) Model() string {
	return modelID(EmbedderFastEmbed, defaultFastEmbedModel)
}

func (e *FastEmbedEmbedder) Close() error { return nil }
