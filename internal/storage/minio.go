package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const bucketRetries = 10

// BlobStore 原始文件存储
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	DownloadToFile(ctx context.Context, key, path string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MinIOStore 基于MinIO的对象存储
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
	logger *zap.Logger
}

// NewMinIOStore 创建MinIO客户端，不在此处访问网络
func NewMinIOStore(cfg config.ObjectStorageConfig, logger *zap.Logger) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.NewConfigError("minio endpoint not configured")
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create minio client").WithCause(err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger,
	}, nil
}

// Bucket 当前使用的bucket
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

// EnsureBucket 确保bucket存在，MinIO刚启动时会重试
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= bucketRetries; attempt++ {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err == nil && exists {
			return nil
		}
		if err == nil {
			err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
			if err == nil || isBucketOwned(err) {
				s.logger.Info("minio bucket ready", zap.String("bucket", s.bucket))
				return nil
			}
		}
		lastErr = err

		if attempt == bucketRetries {
			break
		}
		wait := time.Duration(attempt*2) * time.Second
		s.logger.Warn("minio bucket check failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return apperrors.NewStorageError("bucket check cancelled").WithCause(ctx.Err())
		case <-time.After(wait):
		}
	}
	return apperrors.NewStorageError(fmt.Sprintf("failed to prepare bucket %s", s.bucket)).WithCause(lastErr)
}

// HealthCheck 执行健康检查
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return apperrors.NewStorageError("minio unreachable").WithCause(err)
	}
	return nil
}

// Put 上传对象
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to upload %s", key)).WithCause(err)
	}
	return nil
}

// Get 获取对象内容，调用方负责关闭
func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("object %s", key))
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to stat %s", key)).WithCause(err)
	}

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download %s", key)).WithCause(err)
	}
	return object, nil
}

// DownloadToFile 下载对象到本地路径，失败时清理半写文件
func (s *MinIOStore) DownloadToFile(ctx context.Context, key, path string) error {
	object, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer object.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("failed to prepare download directory").WithCause(err)
	}
	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("failed to create local file").WithCause(err)
	}
	if _, err := io.Copy(file, object); err != nil {
		file.Close()
		os.Remove(path)
		return apperrors.NewStorageError(fmt.Sprintf("failed to download %s", key)).WithCause(err)
	}
	return file.Close()
}

// Delete 删除对象
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete %s", key)).WithCause(err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, apperrors.NewStorageError(fmt.Sprintf("failed to stat %s", key)).WithCause(err)
	}
	return true, nil
}

// NewObjectKey 生成唯一对象键，保留原文件扩展名
func NewObjectKey(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func isBucketOwned(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}
