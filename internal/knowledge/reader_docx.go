package knowledge

import (
	"context"
	"strings"

	"github.com/unidoc/unioffice/document"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// DocxReader Word段落提取
type DocxReader struct{}

func (r *DocxReader) Kind() ReaderKind { return ReaderDOCX }

func (r *DocxReader) CanHandle(path string) bool {
	return hasExt(path, ".docx")
}

// Read 非空段落以换行连接
func (r *DocxReader) Read(_ context.Context, path string) (string, error) {
	if err := checkFile(path, r); err != nil {
		return "", err
	}

	doc, err := document.Open(path)
	if err != nil {
		return "", apperrors.NewExtractionError("failed to parse docx").WithCause(err)
	}
	defer doc.Close()

	var parts []string
	for _, para := range doc.Paragraphs() {
		var b strings.Builder
		for _, run := range para.Runs() {
			b.WriteString(run.Text())
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", apperrors.NewExtractionError("docx contains no text")
	}
	return strings.Join(parts, "\n"), nil
}
