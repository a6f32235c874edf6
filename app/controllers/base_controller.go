package controllers

import (
	"strconv"

	"github.com/beego/beego/v2/server/web"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONError maps err onto its taxonomy status and error envelope.
func (c *BaseController) JSONError(err error) {
	status, body := apperrors.Response(err)
	c.JSON(status, body)
}

// pathID 解析路径中的正整数ID
func (c *BaseController) pathID(key string) (uint, bool) {
	value := c.Ctx.Input.Param(key)
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		c.JSONError(apperrors.NewValidationError("invalid id: " + value))
		return 0, false
	}
	return uint(id), true
}
