//go:build cgo

package knowledge

import (
	"context"
	"strings"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// FastEmbedEmbedder 进程内ONNX模型
type FastEmbedEmbedder struct {
	model      *fastembed.FlagEmbedding
	name       string
	dimensions int
	batchSize  int
	mu         sync.Mutex
}

// NewFastEmbedEmbedder 首次使用时下载模型到CacheDir
func NewFastEmbedEmbedder(opts EmbedderOptions) (*FastEmbedEmbedder, error) {
	name := opts.Model
	if name == "" {
		name = defaultFastEmbedModel
	}
	model, ok := fastEmbedModels[name]
	if !ok {
		return nil, apperrors.NewUnsupportedMethodError("fastembed model", name)
	}
	dims, _ := fastEmbedDimension(name)

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = "local_cache"
	}
	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, apperrors.NewConfigError("failed to initialise fastembed").WithCause(err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	return &FastEmbedEmbedder{model: flagEmbed, name: name, dimensions: dims, batchSize: batchSize}, nil
}

func (e *FastEmbedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewEmbeddingError("embedding cancelled").WithCause(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vectors, err := e.model.PassageEmbed(texts, e.batchSize)
	if err != nil {
		return nil, apperrors.NewEmbeddingError("fastembed inference failed").WithCause(err)
	}
	return vectors, checkVectors(vectors, len(texts))
}

func (e *FastEmbedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewEmbeddingError("embedding cancelled").WithCause(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vector, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, apperrors.NewEmbeddingError("fastembed inference failed").WithCause(err)
	}
	return vector, nil
}

func (e *FastEmbedEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *FastEmbedEmbedder) Model() string {
	return modelID(EmbedderFastEmbed, e.name)
}

// Close 释放ONNX会话
func (e *FastEmbedEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return e.model.Destroy()
	}
	return nil
}
