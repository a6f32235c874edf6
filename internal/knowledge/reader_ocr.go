//go:build cgo

package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/unidoc/unipdf/v3/render"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// A4 at 300 dpi
const ocrRenderWidth = 2480

// Read 渲染每一页后交给tesseract识别，没有识别出任何文本视为OCR失败
func (r *ScannedPdfReader) Read(ctx context.Context, path string) (string, error) {
	if err := checkFile(path, r); err != nil {
		return "", err
	}

	pdfReader, closeFn, err := openPdf(path)
	if err != nil {
		return "", err
	}
	defer closeFn()

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", apperrors.NewExtractionError("failed to count pdf pages").WithCause(err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(r.language); err != nil {
		return "", apperrors.NewExtractionError("failed to configure ocr language").WithCause(err)
	}

	device := render.NewImageDevice()
	device.OutputWidth = ocrRenderWidth

	var pages []string
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", apperrors.NewExtractionError("ocr cancelled").WithCause(err)
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", apperrors.NewExtractionError(fmt.Sprintf("failed to load page %d", i)).WithCause(err)
		}
		img, err := device.Render(page)
		if err != nil {
			return "", apperrors.NewExtractionError(fmt.Sprintf("failed to render page %d", i)).WithCause(err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", apperrors.NewExtractionError("failed to encode page image").WithCause(err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return "", apperrors.NewExtractionError("failed to load page image").WithCause(err)
		}
		text, err := client.Text()
		if err != nil {
			return "", apperrors.NewExtractionError(fmt.Sprintf("ocr failed on page %d", i)).WithCause(err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", apperrors.NewExtractionError("ocr produced no text")
	}
	return strings.Join(pages, "\n\n"), nil
}
