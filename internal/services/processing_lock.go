package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const (
	processingLockPrefix = "ingest:doc:"
	defaultLockTTL       = 10 * time.Minute
)

// ProcessingLock 同一文档同一时刻只允许一个消费者处理。
// Acquire返回的token标识本次持有，Release只释放该token对应的锁
type ProcessingLock interface {
	Acquire(ctx context.Context, documentID uint) (token string, ok bool, err error)
	Release(ctx context.Context, documentID uint, token string) error
}

// RedisProcessingLock 基于SETNX的分布式锁，释放时校验持有者
type RedisProcessingLock struct {
	client *redis.Client
	ttl    time.Duration
	host   string
}

// NewRedisProcessingLock 创建Redis处理锁
func NewRedisProcessingLock(client *redis.Client, ttl time.Duration) *RedisProcessingLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	hostname, _ := os.Hostname()
	return &RedisProcessingLock{
		client: client,
		ttl:    ttl,
		host:   fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

func lockKey(documentID uint) string {
	return fmt.Sprintf("%s%d", processingLockPrefix, documentID)
}

// Acquire 每次获取生成新的token；返回false表示锁已被其他持有者占用
func (l *RedisProcessingLock) Acquire(ctx context.Context, documentID uint) (string, bool, error) {
	token := l.host + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(documentID), token, l.ttl).Result()
	if err != nil {
		return "", false, apperrors.NewMessagingError(fmt.Sprintf("acquire lock for document %d", documentID)).WithCause(err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release 只删除token对应的锁，锁已过期或被他人重新获取时为空操作
func (l *RedisProcessingLock) Release(ctx context.Context, documentID uint, token string) error {
	if token == "" {
		return nil
	}
	err := releaseLockScript.Run(ctx, l.client, []string{lockKey(documentID)}, token).Err()
	if err != nil && err != redis.Nil {
		return apperrors.NewMessagingError(fmt.Sprintf("release lock for document %d", documentID)).WithCause(err)
	}
	return nil
}

// NoopLock 未启用Redis时使用
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, uint) (string, bool, error) { return "", true, nil }

func (NoopLock) Release(context.Context, uint, string) error { return nil }
