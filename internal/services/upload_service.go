package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/metrics"
	"github.com/aihub/rag-ingest/internal/models"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/repository"
	"github.com/aihub/rag-ingest/internal/storage"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	contentTypeText = "text/plain"
)

// 内容类型到文档类型和标准扩展名
var uploadTypes = map[string]struct {
	docType string
	ext     string
}{
	contentTypePDF:  {models.DocumentTypePDF, ".pdf"},
	contentTypeDOCX: {models.DocumentTypeDOCX, ".docx"},
	contentTypeText: {models.DocumentTypeTXT, ".txt"},
}

// UploadRequest 上传请求
type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64
	OwnerID     uint
	Body        io.Reader
}

// UploadService 接收文件、落对象存储、写文档记录并发布处理事件
type UploadService struct {
	blobs     storage.BlobStore
	documents repository.DocumentStore
	publisher queue.Publisher
	maxSize   int64
	allowText bool
	metrics   *metrics.PipelineMetrics
	logger    *zap.Logger
}

// NewUploadService 创建上传服务
func NewUploadService(
	blobs storage.BlobStore,
	documents repository.DocumentStore,
	publisher queue.Publisher,
	cfg config.FileUploadConfig,
	m *metrics.PipelineMetrics,
	logger *zap.Logger,
) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		blobs:     blobs,
		documents: documents,
		publisher: publisher,
		maxSize:   cfg.MaxSize,
		allowText: cfg.AllowText,
		metrics:   m,
		logger:    logger,
	}
}

// Submit 发布失败时仍返回已创建的文档，同时返回MessagingError
func (s *UploadService) Submit(ctx context.Context, req UploadRequest) (*models.Document, error) {
	docType, ext, err := s.resolveType(req.ContentType, req.Filename)
	if err != nil {
		s.metrics.Upload(metrics.UploadRejected)
		return nil, err
	}

	data, err := s.readBody(req)
	if err != nil {
		s.metrics.Upload(metrics.UploadRejected)
		return nil, err
	}

	sum := blake2b.Sum256(data)
	name := req.Filename
	if filepath.Ext(name) == "" {
		name += ext
	}
	key := storage.NewObjectKey(name)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), req.ContentType); err != nil {
		s.metrics.Upload(metrics.UploadInternalFailed)
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewStorageError("failed to store upload").WithCause(err)
	}

	doc := &models.Document{
		Title:           documentTitle(req.Filename, key),
		Type:            docType,
		Status:          models.DocumentStatusPending,
		Path:            &key,
		Size:            int64(len(data)),
		CreatedBy:       req.OwnerID,
		EmbeddingStatus: models.EmbeddingStatusPending,
		Hash:            hex.EncodeToString(sum[:]),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.metrics.Upload(metrics.UploadInternalFailed)
		s.logger.Error("document insert failed, blob left orphaned",
			zap.String("blob_key", key),
			zap.Error(err))
		return nil, err
	}

	if err := s.publisher.Publish(ctx, queue.DocumentEvent{DocumentID: doc.ID}); err != nil {
		s.metrics.Upload(metrics.UploadPublishFailed)
		s.logger.Error("document event not published, document stays pending",
			zap.Uint("document_id", doc.ID),
			zap.String("blob_key", key),
			zap.Error(err))
		if !apperrors.IsAppError(err) {
			err = apperrors.NewMessagingError("failed to publish document event").WithCause(err)
		}
		return doc, err
	}

	s.metrics.Upload(metrics.UploadAccepted)
	s.logger.Info("document accepted",
		zap.Uint("document_id", doc.ID),
		zap.String("type", docType),
		zap.Int64("size", doc.Size),
		zap.String("blob_key", key))
	return doc, nil
}

// resolveType 以声明的内容类型为准，缺省时按扩展名推断
func (s *UploadService) resolveType(contentType, filename string) (string, string, error) {
	mediaType := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", "", apperrors.NewUnsupportedFileTypeError(contentType)
		}
		mediaType = parsed
	} else if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		mediaType, _, _ = mime.ParseMediaType(mime.TypeByExtension(ext))
		if ext == ".docx" {
			mediaType = contentTypeDOCX
		}
	}

	entry, ok := uploadTypes[mediaType]
	if !ok || (mediaType == contentTypeText && !s.allowText) {
		declared := contentType
		if declared == "" {
			declared = filepath.Ext(filename)
		}
		return "", "", apperrors.NewUnsupportedFileTypeError(declared)
	}
	return entry.docType, entry.ext, nil
}

// documentExt 处理时按文档类型还原扩展名，读取器依赖扩展名选择
func documentExt(docType string) string {
	for _, entry := range uploadTypes {
		if entry.docType == docType {
			return entry.ext
		}
	}
	return ""
}

func (s *UploadService) readBody(req UploadRequest) ([]byte, error) {
	if req.Body == nil {
		return nil, apperrors.NewValidationError("no file provided")
	}
	if s.maxSize > 0 && req.Size > s.maxSize {
		return nil, apperrors.NewValidationError(fmt.Sprintf("file size %d exceeds limit %d", req.Size, s.maxSize))
	}

	reader := req.Body
	if s.maxSize > 0 {
		reader = io.LimitReader(req.Body, s.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read upload").WithCause(err)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("no file provided")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, apperrors.NewValidationError(fmt.Sprintf("file exceeds limit %d", s.maxSize))
	}
	return data, nil
}

func documentTitle(filename, key string) string {
	title := strings.TrimSpace(filepath.Base(filename))
	if title == "" || title == "." || title == string(filepath.Separator) {
		return key
	}
	if len(title) > 255 {
		title = title[:255]
	}
	return title
}
