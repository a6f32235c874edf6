package knowledge

import (
	"context"
	"strings"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// EmbedderKind 向量化后端
type EmbedderKind string

const (
	EmbedderOpenAI    EmbedderKind = "openai"
	EmbedderOllama    EmbedderKind = "ollama"
	EmbedderFastEmbed EmbedderKind = "fastembed"
	EmbedderHashing   EmbedderKind = "hashing"
)

// ParseEmbedderKind 解析向量化后端名称
func ParseEmbedderKind(name string) (EmbedderKind, error) {
	switch kind := EmbedderKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case EmbedderOpenAI, EmbedderOllama, EmbedderFastEmbed, EmbedderHashing:
		return kind, nil
	case "":
		return EmbedderHashing, nil
	default:
		return "", apperrors.NewUnsupportedMethodError("embedding", name)
	}
}

// Embedder 文本向量化，同一语料入库与查询必须使用同一个Model
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// Model 写入fragments.embedding_model的标识，格式为 kind:model
	Model() string
}

// EmbedderOptions 向量化参数
type EmbedderOptions struct {
	Model         string
	Dimensions    int
	BatchSize     int
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaURL     string
	CacheDir      string
}

// NewEmbedder 创建向量化器
func NewEmbedder(kind EmbedderKind, opts EmbedderOptions) (Embedder, error) {
	switch kind {
	case EmbedderOpenAI:
		return NewOpenAIEmbedder(opts)
	case EmbedderOllama:
		return NewOllamaEmbedder(opts)
	case EmbedderFastEmbed:
		return NewFastEmbedEmbedder(opts)
	case EmbedderHashing:
		return NewHashingEmbedder(opts.Dimensions), nil
	default:
		return nil, apperrors.NewUnsupportedMethodError("embedding", string(kind))
	}
}

const defaultFastEmbedModel = "all-MiniLM-L6-v2"

var fastEmbedDims = map[string]int{
	"all-MiniLM-L6-v2":                       384,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-small-zh-v1.5":                 512,
}

func fastEmbedDimension(model string) (int, bool) {
	dim, ok := fastEmbedDims[model]
	return dim, ok
}

func modelID(kind EmbedderKind, model string) string {
	return string(kind) + ":" + model
}

func batches(texts []string, size int) [][]string {
	if size <= 0 || size >= len(texts) {
		return [][]string{texts}
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return apperrors.NewEmbeddingError("embedding count does not match input count")
	}
	return nil
}
