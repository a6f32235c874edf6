package knowledge

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerEmbedder 远程向量化服务连续失败后熔断，冷却期内直接返回EmbeddingError
type BreakerEmbedder struct {
	next             Embedder
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreakerEmbedder 默认连续5次失败熔断，冷却1分钟，半开后3次成功恢复
func NewBreakerEmbedder(next Embedder, failureThreshold int, cooldown time.Duration) *BreakerEmbedder {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &BreakerEmbedder{
		next:             next,
		failureThreshold: failureThreshold,
		successThreshold: 3,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

func (b *BreakerEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	vectors, err := b.next.EmbedMany(ctx, texts)
	b.record(err)
	return vectors, err
}

func (b *BreakerEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	vector, err := b.next.EmbedOne(ctx, text)
	b.record(err)
	return vector, err
}

func (b *BreakerEmbedder) Dimensions() int { return b.next.Dimensions() }

func (b *BreakerEmbedder) Model() string { return b.next.Model() }

// State 当前状态
func (b *BreakerEmbedder) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerEmbedder) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return apperrors.NewEmbeddingError("embedding backend unavailable, circuit open").
				WithDetails(map[string]string{"model": b.next.Model()})
		}
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *BreakerEmbedder) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.successThreshold {
				b.state = BreakerClosed
				b.failures = 0
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.successes = 0
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
		}
	}
}
