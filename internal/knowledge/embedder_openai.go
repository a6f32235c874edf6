package knowledge

import (
	"context"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

var openAIDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI向量化器，BaseURL可指向兼容服务
func NewOpenAIEmbedder(opts EmbedderOptions) (*OpenAIEmbedder, error) {
	apiKey := strings.TrimSpace(opts.OpenAIAPIKey)
	if apiKey == "" {
		return nil, apperrors.NewConfigError("openai api key not configured")
	}
	model := opts.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	dims, ok := openAIDimensions[model]
	if !ok {
		dims = opts.Dimensions
	}
	if dims <= 0 {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dims,
		batchSize:  opts.BatchSize,
	}, nil
}

func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	result := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: batch,
		})
		if err != nil {
			return nil, apperrors.NewEmbeddingError("openai embedding request failed").WithCause(err)
		}
		vectors := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				return nil, apperrors.NewEmbeddingError("openai returned an out of range index")
			}
			vectors[item.Index] = item.Embedding
		}
		for _, v := range vectors {
			if len(v) == 0 {
				return nil, apperrors.NewEmbeddingError("openai response is missing embeddings")
			}
		}
		result = append(result, vectors...)
	}
	return result, checkVectors(result, len(texts))
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text is empty")
	}
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Model() string {
	return modelID(EmbedderOpenAI, e.model)
}
