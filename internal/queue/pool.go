package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// Task 提交给工作池的任务
type Task func(ctx context.Context)

// Pool 有界工作池，任务通道无缓冲，空闲worker数即为预取数
type Pool struct {
	workers int
	tasks   chan Task
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPool 创建工作池
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task),
		logger:  logger,
	}
}

// Workers 返回worker数量
func (p *Pool) Workers() int {
	return p.workers
}

// Start 启动worker。ctx取消后不再领取新任务，已领取的任务使用不随ctx取消的上下文执行完
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i, p.stopCh)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
}

func (p *Pool) loop(ctx context.Context, id int, stopCh <-chan struct{}) {
	defer p.wg.Done()
	taskCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case task := <-p.tasks:
			p.run(taskCtx, id, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				zap.Int("worker_id", id),
				zap.Any("panic", r))
		}
	}()
	task(ctx)
}

// Submit 阻塞直到有空闲worker接收任务
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.Lock()
	running, stopCh := p.running, p.stopCh
	p.mu.Unlock()
	if !running {
		return apperrors.NewMessagingError("worker pool is not running")
	}

	select {
	case p.tasks <- task:
		return nil
	case <-stopCh:
		return apperrors.NewMessagingError("worker pool stopped")
	case <-ctx.Done():
		return apperrors.NewMessagingError(fmt.Sprintf("submit cancelled: %v", ctx.Err())).WithCause(ctx.Err())
	}
}

// Stop 停止接收任务并等待进行中的任务结束
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
