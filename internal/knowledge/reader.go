package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// ReaderKind 文本提取策略
type ReaderKind string

const (
	ReaderPDF        ReaderKind = "pdf"
	ReaderPDFScanned ReaderKind = "pdf_scanned"
	ReaderDOCX       ReaderKind = "docx"
	ReaderText       ReaderKind = "txt"
)

// DefaultReaderOrder 探测优先级
var DefaultReaderOrder = []ReaderKind{ReaderPDF, ReaderPDFScanned, ReaderDOCX, ReaderText}

// ParseReaderKinds 解析配置中的读取器顺序，为空时使用默认顺序
func ParseReaderKinds(names []string) ([]ReaderKind, error) {
	if len(names) == 0 {
		return append([]ReaderKind(nil), DefaultReaderOrder...), nil
	}
	kinds := make([]ReaderKind, 0, len(names))
	seen := make(map[ReaderKind]bool, len(names))
	for _, name := range names {
		kind := ReaderKind(strings.ToLower(strings.TrimSpace(name)))
		switch kind {
		case ReaderPDF, ReaderPDFScanned, ReaderDOCX, ReaderText:
		default:
			return nil, apperrors.NewUnsupportedMethodError("reader", name)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Reader 从本地文件提取纯文本
type Reader interface {
	Kind() ReaderKind
	CanHandle(path string) bool
	Read(ctx context.Context, path string) (string, error)
}

// ReaderOptions 读取器参数
type ReaderOptions struct {
	OCRLanguage string
}

// ReaderRegistry 按优先级探测读取器
type ReaderRegistry struct {
	readers []Reader
}

// NewReaderRegistry 按给定顺序构建读取器
func NewReaderRegistry(kinds []ReaderKind, opts ReaderOptions) *ReaderRegistry {
	readers := make([]Reader, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case ReaderPDF:
			readers = append(readers, &PdfReader{})
		case ReaderPDFScanned:
			readers = append(readers, NewScannedPdfReader(opts.OCRLanguage))
		case ReaderDOCX:
			readers = append(readers, &DocxReader{})
		case ReaderText:
			readers = append(readers, &TextReader{})
		}
	}
	return &ReaderRegistry{readers: readers}
}

// NewReaderRegistryFrom 使用自定义读取器
func NewReaderRegistryFrom(readers ...Reader) *ReaderRegistry {
	return &ReaderRegistry{readers: readers}
}

// Select 返回第一个能处理该文件的读取器
func (r *ReaderRegistry) Select(path string) (Reader, error) {
	for _, reader := range r.readers {
		if reader.CanHandle(path) {
			return reader, nil
		}
	}
	return nil, apperrors.NewUnsupportedFormatError(filepath.Base(path))
}

// Read 依次尝试能处理该文件的读取器，提取失败时回退到下一个（数字PDF无文本时转OCR）
func (r *ReaderRegistry) Read(ctx context.Context, path string) (string, ReaderKind, error) {
	if _, err := os.Stat(path); err != nil {
		return "", "", apperrors.NewNotFoundError(fmt.Sprintf("file %s", filepath.Base(path)))
	}

	var lastErr error
	for _, reader := range r.readers {
		if !reader.CanHandle(path) {
			continue
		}
		text, err := reader.Read(ctx, path)
		if err == nil {
			return text, reader.Kind(), nil
		}
		lastErr = err
		if !apperrors.HasCode(err, apperrors.ErrCodeExtractionFailed) {
			return "", reader.Kind(), err
		}
	}
	if lastErr == nil {
		return "", "", apperrors.NewUnsupportedFormatError(filepath.Base(path))
	}
	return "", "", lastErr
}

// checkFile 读取前的公共检查
func checkFile(path string, reader Reader) error {
	if _, err := os.Stat(path); err != nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("file %s", filepath.Base(path)))
	}
	if !reader.CanHandle(path) {
		return apperrors.NewUnsupportedFormatError(filepath.Base(path))
	}
	return nil
}

func hasExt(path string, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
