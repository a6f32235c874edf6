package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// PdfReader 数字PDF文本提取
type PdfReader struct{}

func (r *PdfReader) Kind() ReaderKind { return ReaderPDF }

func (r *PdfReader) CanHandle(path string) bool {
	return hasExt(path, ".pdf")
}

// Read 逐页提取文本，页之间以空行分隔
func (r *PdfReader) Read(ctx context.Context, path string) (string, error) {
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

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", apperrors.NewExtractionError("pdf extraction cancelled").WithCause(err)
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", apperrors.NewExtractionError(fmt.Sprintf("no text layer in %s", path))
	}
	return strings.Join(pages, "\n\n"), nil
}

func openPdf(path string) (*model.PdfReader, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.NewExtractionError("failed to open pdf").WithCause(err)
	}
	pdfReader, err := model.NewPdfReader(file)
	if err != nil {
		file.Close()
		return nil, nil, apperrors.NewExtractionError("failed to parse pdf").WithCause(err)
	}
	return pdfReader, func() { file.Close() }, nil
}

// ScannedPdfReader 扫描件PDF，渲染后OCR
type ScannedPdfReader struct {
	language string
}

// NewScannedPdfReader 创建OCR读取器，默认西班牙语
func NewScannedPdfReader(language string) *ScannedPdfReader {
	if language == "" {
		language = "spa"
	}
	return &ScannedPdfReader{language: language}
}

func (r *ScannedPdfReader) Kind() ReaderKind { return ReaderPDFScanned }

func (r *ScannedPdfReader) CanHandle(path string) bool {
	return hasExt(path, ".pdf")
}

// Language OCR语言
func (r *ScannedPdfReader) Language() string {
	return r.language
}
