package queue

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// DocumentEvent 文档待处理事件
type DocumentEvent struct {
	DocumentID uint `json:"document_id"`
}

// EncodeEvent 序列化事件
func EncodeEvent(event DocumentEvent) ([]byte, error) {
	if event.DocumentID == 0 {
		return nil, apperrors.NewValidationError("document_id is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.NewMessagingError("failed to encode event").WithCause(err)
	}
	return data, nil
}

// DecodeEvent 解析事件，无法解析或缺少document_id时返回ValidationError
func DecodeEvent(body []byte) (DocumentEvent, error) {
	var event DocumentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return DocumentEvent{}, apperrors.NewValidationError("malformed event body").WithCause(err)
	}
	if event.DocumentID == 0 {
		return DocumentEvent{}, apperrors.NewValidationError(fmt.Sprintf("event without document_id: %s", truncate(body, 128)))
	}
	return event, nil
}

// Delivery 一条待确认的消息
type Delivery interface {
	Body() []byte
	// Ack 处理成功，消息从通道移除
	Ack(ctx context.Context) error
	// Reject 处理失败，不重新入队；配置了死信时转发
	Reject(ctx context.Context, reason string) error
}

// Handler 消息处理函数，负责对每条消息调用Ack或Reject
type Handler func(ctx context.Context, delivery Delivery)

// Publisher 事件发布方
type Publisher interface {
	Publish(ctx context.Context, event DocumentEvent) error
	Close() error
}

// Consumer 事件消费方，Run阻塞直到ctx取消
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
