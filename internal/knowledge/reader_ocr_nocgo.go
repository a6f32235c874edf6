//go:build !cgo

package knowledge

import (
	"context"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// Read 未启用cgo时tesseract不可用
func (r *ScannedPdfReader) Read(_ context.Context, path string) (string, error) {
	if err := checkFile(path, r); err != nil {
		return "", err
	}
	return "", apperrors.NewExtractionError("ocr not available: binary built without cgo")
}
