package knowledge

import (
	"context"

	"github.com/tmc/langchaingo/textsplitter"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const defaultTokenEncoding = "cl100k_base"

// TokenSplitter 按tiktoken编码计数
type TokenSplitter struct {
	splitter textsplitter.TokenSplitter
}

// NewTokenSplitter 创建token切分器
func NewTokenSplitter(chunkSize, overlap int, encoding string) *TokenSplitter {
	if encoding == "" {
		encoding = defaultTokenEncoding
	}
	return &TokenSplitter{
		splitter: textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithEncodingName(encoding),
		),
	}
}

func (s *TokenSplitter) Split(_ context.Context, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, apperrors.NewExtractionError("token split failed").WithCause(err)
	}
	return chunks, nil
}

// RecursiveSplitter 段落、句子、单词逐级回退
type RecursiveSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursiveSplitter 创建递归切分器
func NewRecursiveSplitter(chunkSize, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

func (s *RecursiveSplitter) Split(_ context.Context, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, apperrors.NewExtractionError("recursive split failed").WithCause(err)
	}
	return chunks, nil
}
