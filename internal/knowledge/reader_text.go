package knowledge

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// TextReader 纯文本直读
type TextReader struct{}

func (r *TextReader) Kind() ReaderKind { return ReaderText }

func (r *TextReader) CanHandle(path string) bool {
	return hasExt(path, ".txt")
}

func (r *TextReader) Read(_ context.Context, path string) (string, error) {
	if err := checkFile(path, r); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.NewExtractionError("failed to read text file").WithCause(err)
	}
	if !utf8.Valid(data) {
		return "", apperrors.NewExtractionError("text file is not valid utf-8")
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", apperrors.NewExtractionError("text file is empty")
	}
	return text, nil
}
