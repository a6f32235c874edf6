package middleware

import (
	"time"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const startedKey = "request_started"

// RequestStart 记录请求开始时间，挂在BeforeRouter
func RequestStart(ctx *beecontext.Context) {
	ctx.Input.SetData(startedKey, time.Now())
}

// AccessLog 请求结束后输出一行访问日志，挂在FinishRouter
func AccessLog(logger *zap.Logger) func(*beecontext.Context) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *beecontext.Context) {
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.ResponseWriter.Status),
			zap.String("ip", ctx.Input.IP()),
		}
		if started, ok := ctx.Input.GetData(startedKey).(time.Time); ok {
			fields = append(fields, zap.Duration("latency", time.Since(started)))
		}

		switch status := ctx.ResponseWriter.Status; {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request served", fields...)
		}
	}
}
