package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const (
	payloadField      = "payload"
	idlePollInterval  = 100 * time.Millisecond
	readRetryDelay    = time.Second
	claimIdleTimeout  = 5 * time.Minute
	claimScanInterval = 30 * time.Second
)

// RedisStreamChannel 基于Redis Streams的事件通道，同时实现Publisher和Consumer
type RedisStreamChannel struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	deadLetter string
	block      time.Duration
	workers    int
	logger     *zap.Logger
}

// NewRedisStreamChannel 创建通道并确保消费者组存在
func NewRedisStreamChannel(ctx context.Context, client *redis.Client, cfg config.RedisStreamConfig, workers int, logger *zap.Logger) (*RedisStreamChannel, error) {
	if client == nil {
		return nil, apperrors.NewConfigError("redis client is required")
	}
	if cfg.Stream == "" || cfg.Group == "" {
		return nil, apperrors.NewConfigError("redis stream and group are required")
	}

	consumer := cfg.Consumer
	if consumer == "" {
		host, _ := os.Hostname()
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, apperrors.NewMessagingError("failed to create consumer group").WithCause(err)
	}

	return &RedisStreamChannel{
		client:     client,
		stream:     cfg.Stream,
		group:      cfg.Group,
		consumer:   consumer,
		deadLetter: cfg.DeadLetterStream,
		block:      cfg.Block,
		workers:    workers,
		logger:     logger,
	}, nil
}

// Publish 追加事件到stream
func (c *RedisStreamChannel) Publish(ctx context.Context, event DocumentEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]interface{}{
			payloadField:  string(data),
			"document_id": event.DocumentID,
		},
	}).Result()
	if err != nil {
		return apperrors.NewMessagingError("failed to publish document event").WithCause(err)
	}
	c.logger.Debug("document event published",
		zap.Uint("document_id", event.DocumentID),
		zap.String("stream", c.stream),
		zap.String("message_id", id))
	return nil
}

// Run 阻塞消费直到ctx取消
func (c *RedisStreamChannel) Run(ctx context.Context, handler Handler) error {
	pool := NewPool(c.workers, c.logger)
	pool.Start(ctx)
	defer pool.Stop()

	lastClaim := time.Now()
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= claimScanInterval {
			c.claimAbandoned(ctx, pool, handler)
			lastClaim = time.Now()
		}

		msg, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("failed to read from stream", zap.String("stream", c.stream), zap.Error(err))
			sleepCtx(ctx, readRetryDelay)
			continue
		}
		if msg == nil {
			if c.block < 0 {
				sleepCtx(ctx, idlePollInterval)
			}
			continue
		}

		if err := c.dispatch(ctx, pool, handler, *msg); err != nil {
			break
		}
	}
	c.logger.Info("redis stream consumer stopped", zap.String("stream", c.stream))
	return nil
}

func (c *RedisStreamChannel) read(ctx context.Context) (*redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return &streams[0].Messages[0], nil
}

// claimAbandoned 接管崩溃consumer遗留的消息
func (c *RedisStreamChannel) claimAbandoned(ctx context.Context, pool *Pool, handler Handler) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  claimIdleTimeout,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		c.logger.Warn("failed to claim abandoned messages", zap.String("stream", c.stream), zap.Error(err))
		return
	}
	for _, msg := range msgs {
		if err := c.dispatch(ctx, pool, handler, msg); err != nil {
			return
		}
	}
}

func (c *RedisStreamChannel) dispatch(ctx context.Context, pool *Pool, handler Handler, msg redis.XMessage) error {
	delivery := &streamDelivery{channel: c, id: msg.ID, body: payloadOf(msg)}
	return pool.Submit(ctx, func(ctx context.Context) {
		handler(ctx, delivery)
	})
}

// Close 客户端由调用方管理
func (c *RedisStreamChannel) Close() error {
	return nil
}

// Ready 通道是否可用
func (c *RedisStreamChannel) Ready() bool {
	return c != nil && c.client != nil
}

func (c *RedisStreamChannel) ack(ctx context.Context, id string) error {
	pipe := c.client.TxPipeline()
	pipe.XAck(ctx, c.stream, c.group, id)
	pipe.XDel(ctx, c.stream, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewMessagingError("failed to ack message").WithCause(err)
	}
	return nil
}

func (c *RedisStreamChannel) reject(ctx context.Context, id string, body []byte, reason string) error {
	pipe := c.client.TxPipeline()
	if c.deadLetter != "" {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.deadLetter,
			Values: map[string]interface{}{
				payloadField:  string(body),
				"original_id": id,
				"reason":      reason,
			},
		})
	}
	pipe.XAck(ctx, c.stream, c.group, id)
	pipe.XDel(ctx, c.stream, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewMessagingError("failed to reject message").WithCause(err)
	}
	return nil
}

// streamDelivery Redis Streams消息
type streamDelivery struct {
	channel *RedisStreamChannel
	id      string
	body    []byte
}

func (d *streamDelivery) Body() []byte {
	return d.body
}

func (d *streamDelivery) Ack(ctx context.Context) error {
	return d.channel.ack(ctx, d.id)
}

func (d *streamDelivery) Reject(ctx context.Context, reason string) error {
	return d.channel.reject(ctx, d.id, d.body, reason)
}

// payloadOf 兼容只带document_id字段的消息
func payloadOf(msg redis.XMessage) []byte {
	if raw, ok := msg.Values[payloadField].(string); ok {
		return []byte(raw)
	}
	if raw, ok := msg.Values["document_id"].(string); ok {
		if _, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return []byte(`{"document_id":` + raw + `}`)
		}
	}
	return nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
