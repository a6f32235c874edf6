package di

import (
	"errors"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Lifecycle 按注册的逆序释放资源
type Lifecycle struct {
	mu    sync.Mutex
	tasks []cleanupTask
}

type cleanupTask struct {
	name string
	fn   func() error
}

// Append 注册清理函数
func (l *Lifecycle) Append(name string, fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, cleanupTask{name: name, fn: fn})
}

// Close 逆序执行全部清理函数，单个失败不影响后续
func (l *Lifecycle) Close(logger *zap.Logger) error {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	if logger == nil {
		logger = zap.NewNop()
	}

	var errs []error
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := tasks[i].fn(); err != nil {
			logger.Warn("cleanup failed", zap.String("resource", tasks[i].name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewContainer 创建容器并注入生命周期对象
func NewContainer() (*dig.Container, *Lifecycle, error) {
	container := dig.New()
	lifecycle := &Lifecycle{}
	if err := container.Provide(func() *Lifecycle { return lifecycle }); err != nil {
		return nil, nil, err
	}
	return container, lifecycle, nil
}
