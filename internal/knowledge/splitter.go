package knowledge

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// SplitterKind 切分策略
type SplitterKind string

const (
	SplitterChar      SplitterKind = "char"
	SplitterToken     SplitterKind = "token"
	SplitterRecursive SplitterKind = "recursive"
	SplitterSentence  SplitterKind = "sentence"
	SplitterSemantic  SplitterKind = "semantic"
)

// ParseSplitterKind 解析切分策略名称
func ParseSplitterKind(name string) (SplitterKind, error) {
	switch kind := SplitterKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case SplitterChar, SplitterToken, SplitterRecursive, SplitterSentence, SplitterSemantic:
		return kind, nil
	case "":
		return SplitterChar, nil
	default:
		return "", apperrors.NewUnsupportedMethodError("splitter", name)
	}
}

// Splitter 文本切分，输出顺序即片段序号
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// SplitterOptions 切分参数
type SplitterOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// EncodingName token切分使用的tiktoken编码
	EncodingName string
	// Embedder semantic切分必需
	Embedder Embedder
}

// Validate 0 <= overlap < size
func (o SplitterOptions) Validate() error {
	if o.ChunkSize <= 0 {
		return apperrors.NewValidationError(fmt.Sprintf("chunk size must be positive, got %d", o.ChunkSize))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return apperrors.NewValidationError(fmt.Sprintf("chunk overlap must be in [0, %d), got %d", o.ChunkSize, o.ChunkOverlap))
	}
	return nil
}

// NewSplitter 创建切分器
func NewSplitter(kind SplitterKind, opts SplitterOptions) (Splitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case SplitterChar:
		return NewCharSplitter(opts.ChunkSize, opts.ChunkOverlap), nil
	case SplitterToken:
		return NewTokenSplitter(opts.ChunkSize, opts.ChunkOverlap, opts.EncodingName), nil
	case SplitterRecursive:
		return NewRecursiveSplitter(opts.ChunkSize, opts.ChunkOverlap), nil
	case SplitterSentence:
		return NewSentenceSplitter(opts.ChunkSize, opts.ChunkOverlap), nil
	case SplitterSemantic:
		if opts.Embedder == nil {
			return nil, apperrors.NewConfigError("semantic splitter requires an embedder")
		}
		return NewSemanticSplitter(opts.Embedder), nil
	default:
		return nil, apperrors.NewUnsupportedMethodError("splitter", string(kind))
	}
}
