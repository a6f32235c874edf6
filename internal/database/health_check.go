package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 元数据库健康检查器
type HealthChecker struct {
	db         *sql.DB
	logger     *logrus.Logger
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int

	mu        sync.RWMutex
	isHealthy bool
	lastCheck time.Time
	lastError error
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:         db,
		logger:     logger,
		timeout:    5 * time.Second,
		retryDelay: 2 * time.Second,
		maxRetries: 3,
	}
}

// SetRetryConfig 设置启动检查的重试参数
func (hc *HealthChecker) SetRetryConfig(delay time.Duration, maxRetries int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.retryDelay = delay
	hc.maxRetries = maxRetries
}

// Check 执行一次往返查询
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	var one int
	err := hc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	responseTime := time.Since(start)

	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.lastCheck = time.Now()

	if err != nil {
		hc.lastError = err
		hc.isHealthy = false
		hc.logger.WithFields(logrus.Fields{
			"error":         err.Error(),
			"response_time": responseTime,
		}).Warn("Database health check failed")
		return err
	}

	if hc.lastError != nil {
		hc.logger.WithField("response_time", responseTime).Info("Database connection restored")
	}
	hc.lastError = nil
	hc.isHealthy = true
	hc.logger.WithField("response_time", responseTime).Debug("Database health check passed")
	return nil
}

// CheckOnStartup 启动时检查，重试耗尽仍失败则返回错误，调用方应中止启动
func (hc *HealthChecker) CheckOnStartup(ctx context.Context) error {
	hc.mu.RLock()
	delay, maxRetries := hc.retryDelay, hc.maxRetries
	hc.mu.RUnlock()

	err := hc.Check(ctx)
	for i := 0; err != nil && i < maxRetries; i++ {
		hc.logger.WithField("attempt", i+1).Info("Retrying database connection")
		select {
		case <-time.After(delay * time.Duration(i+1)):
			err = hc.Check(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		hc.logger.Error("Database connection failed after all retries")
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// IsHealthy 获取当前健康状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// GetHealthResult 获取健康检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:   hc.isHealthy,
		LastCheck: hc.lastCheck,
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}
