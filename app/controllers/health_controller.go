package controllers

import (
	"context"
	"net/http"
	"time"
)

// Check 单个依赖的可用性检查
type Check func(ctx context.Context) error

// HealthController 汇总元数据库、对象存储与消息通道的状态
type HealthController struct {
	BaseController
	Checks map[string]Check
}

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health 任一依赖不可用时返回503
func (c *HealthController) Health() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]componentHealth, len(c.Checks))
	for name, check := range c.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components[name] = componentHealth{Status: "down", Error: err.Error()}
			continue
		}
		components[name] = componentHealth{Status: "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}
