package queue

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const consumeRetryDelay = 5 * time.Second

// KafkaConsumer 消费者组，消息交给工作池处理
type KafkaConsumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	deadLetter string
	dlq        sarama.SyncProducer
	workers    int
	logger     *zap.Logger
}

// NewKafkaConsumer 创建消费者组；配置了死信主题时额外创建一个生产者
func NewKafkaConsumer(cfg config.KafkaConfig, workers int, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.NewConfigError("kafka brokers not configured")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, apperrors.NewMessagingError("failed to create kafka consumer group").WithCause(err)
	}

	var dlq sarama.SyncProducer
	if cfg.DeadLetterTopic != "" {
		dlq, err = sarama.NewSyncProducer(cfg.Brokers, newProducerConfig())
		if err != nil {
			group.Close()
			return nil, apperrors.NewMessagingError("failed to create dead letter producer").WithCause(err)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("kafka consumer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group_id", cfg.GroupID),
		zap.String("topic", cfg.Topic))

	return &KafkaConsumer{
		group:      group,
		topics:     []string{cfg.Topic},
		deadLetter: cfg.DeadLetterTopic,
		dlq:        dlq,
		workers:    workers,
		logger:     logger,
	}, nil
}

// Run 阻塞消费直到ctx取消
func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	pool := NewPool(c.workers, c.logger)
	pool.Start(ctx)
	defer pool.Stop()

	// Errors通道在Close时关闭
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", zap.Error(err))
		}
	}()

	groupHandler := &consumerGroupHandler{
		pool:       pool,
		handler:    handler,
		dlq:        c.dlq,
		deadLetter: c.deadLetter,
		logger:     c.logger,
	}

	for {
		if err := c.group.Consume(ctx, c.topics, groupHandler); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(consumeRetryDelay):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Close 关闭消费者组和死信生产者
func (c *KafkaConsumer) Close() error {
	if c == nil {
		return nil
	}
	if c.dlq != nil {
		if err := c.dlq.Close(); err != nil {
			c.logger.Warn("failed to close dead letter producer", zap.Error(err))
		}
	}
	if c.group != nil {
		return c.group.Close()
	}
	return nil
}

// consumerGroupHandler 消费者组处理器
type consumerGroupHandler struct {
	pool       *Pool
	handler    Handler
	dlq        sarama.SyncProducer
	deadLetter string
	logger     *zap.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 逐条提交到工作池，工作池满时阻塞
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			delivery := &kafkaDelivery{
				message:    message,
				session:    session,
				dlq:        h.dlq,
				deadLetter: h.deadLetter,
				logger:     h.logger,
			}
			err := h.pool.Submit(session.Context(), func(ctx context.Context) {
				h.handler(ctx, delivery)
			})
			if err != nil {
				// 未处理的消息不标记，重平衡后重新投递
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// kafkaDelivery Ack即标记offset
type kafkaDelivery struct {
	message    *sarama.ConsumerMessage
	session    sarama.ConsumerGroupSession
	dlq        sarama.SyncProducer
	deadLetter string
	logger     *zap.Logger
}

func (d *kafkaDelivery) Body() []byte {
	return d.message.Value
}

func (d *kafkaDelivery) Ack(context.Context) error {
	d.session.MarkMessage(d.message, "")
	return nil
}

func (d *kafkaDelivery) Reject(_ context.Context, reason string) error {
	defer d.session.MarkMessage(d.message, "")

	if d.dlq == nil || d.deadLetter == "" {
		return nil
	}
	if _, _, err := d.dlq.SendMessage(deadLetterMessage(d.deadLetter, d.message, reason)); err != nil {
		d.logger.Error("failed to forward message to dead letter topic",
			zap.String("topic", d.deadLetter),
			zap.Int64("offset", d.message.Offset),
			zap.Error(err))
		return apperrors.NewMessagingError("failed to forward dead letter").WithCause(err)
	}
	return nil
}
