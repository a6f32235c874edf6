package knowledge

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

var ollamaDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// OllamaEmbedder 本地Ollama服务
type OllamaEmbedder struct {
	embedder   *embeddings.EmbedderImpl
	model      string
	dimensions int
}

// NewOllamaEmbedder 默认模型nomic-embed-text
func NewOllamaEmbedder(opts EmbedderOptions) (*OllamaEmbedder, error) {
	model := opts.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	llmOpts := []ollama.Option{ollama.WithModel(model)}
	if opts.OllamaURL != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(opts.OllamaURL))
	}

	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to create ollama client").WithCause(err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if opts.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(opts.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(llm, embedOpts...)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to create ollama embedder").WithCause(err)
	}

	dims, ok := ollamaDimensions[strings.SplitN(model, ":", 2)[0]]
	if !ok {
		dims = opts.Dimensions
	}

	return &OllamaEmbedder{embedder: embedder, model: model, dimensions: dims}, nil
}

func (e *OllamaEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperrors.NewEmbeddingError("ollama embedding request failed").WithCause(err)
	}
	return vectors, checkVectors(vectors, len(texts))
}

func (e *OllamaEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text is empty")
	}
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperrors.NewEmbeddingError("ollama embedding request failed").WithCause(err)
	}
	return vector, nil
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OllamaEmbedder) Model() string {
	return modelID(EmbedderOllama, e.model)
}
