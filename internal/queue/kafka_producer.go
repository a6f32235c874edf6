package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// KafkaPublisher Kafka事件发布方
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func newProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 10 * time.Second
	return cfg
}

// NewKafkaPublisher 创建同步生产者
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.NewConfigError("kafka brokers not configured")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newProducerConfig())
	if err != nil {
		return nil, apperrors.NewMessagingError("failed to create kafka producer").WithCause(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaPublisherWithProducer 使用已有的sarama生产者
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish 发布文档事件，以文档ID作为分区键
func (p *KafkaPublisher) Publish(ctx context.Context, event DocumentEvent) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewMessagingError("publish cancelled").WithCause(err)
	}
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	key := strconv.FormatUint(uint64(event.DocumentID), 10)
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("document_id"), Value: []byte(key)},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish document event",
			zap.Uint("document_id", event.DocumentID),
			zap.String("topic", p.topic),
			zap.Error(err))
		return apperrors.NewMessagingError("failed to publish document event").WithCause(err)
	}

	p.logger.Debug("document event published",
		zap.Uint("document_id", event.DocumentID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Ready 生产者是否可用
func (p *KafkaPublisher) Ready() bool {
	return p != nil && p.producer != nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// deadLetterMessage 被拒绝消息原样转发，来源信息放在header中
func deadLetterMessage(topic string, msg *sarama.ConsumerMessage, reason string) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("original_topic"), Value: []byte(msg.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(msg.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: []byte("reason"), Value: []byte(reason)},
		},
	}
}
