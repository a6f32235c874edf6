package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
	"github.com/aihub/rag-ingest/internal/repository"
	"github.com/aihub/rag-ingest/internal/services"
)

// DocumentSubmitter 接收上传的文档
type DocumentSubmitter interface {
	Submit(ctx context.Context, req services.UploadRequest) (*models.Document, error)
}

// DocumentController 文档控制器
type DocumentController struct {
	BaseController
	Uploads   DocumentSubmitter
	Documents repository.DocumentStore
	Fragments repository.FragmentStore
}

type documentCreated struct {
	ID     uint   `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Create 上传文件，表单字段file为文件，chat_id或owner_id为所属上下文ID
func (c *DocumentController) Create() {
	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(apperrors.NewValidationError("file is required").WithCause(err))
		return
	}
	defer file.Close()

	ownerID, ok := c.ownerID()
	if !ok {
		return
	}

	doc, err := c.Uploads.Submit(c.Ctx.Request.Context(), services.UploadRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		OwnerID:     ownerID,
		Body:        file,
	})
	if err != nil {
		// 文档已入库但事件未发出，调用方需要知道文档ID
		if doc != nil {
			err = apperrors.GetAppError(err).WithDetails(map[string]interface{}{
				"document_id": doc.ID,
				"status":      doc.Status,
			})
		}
		c.JSONError(err)
		return
	}

	c.JSON(http.StatusCreated, documentCreated{ID: doc.ID, Title: doc.Title, Status: doc.Status})
}

// Get 文档详情
func (c *DocumentController) Get() {
	id, ok := c.pathID(":id")
	if !ok {
		return
	}

	doc, err := c.Documents.GetByID(c.Ctx.Request.Context(), id)
	if err != nil {
		c.JSONError(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ListFragments 按序号列出文档片段
func (c *DocumentController) ListFragments() {
	id, ok := c.pathID(":id")
	if !ok {
		return
	}

	ctx := c.Ctx.Request.Context()
	if _, err := c.Documents.GetByID(ctx, id); err != nil {
		c.JSONError(err)
		return
	}

	fragments, err := c.Fragments.ListByDocument(ctx, id)
	if err != nil {
		c.JSONError(err)
		return
	}
	if fragments == nil {
		fragments = []models.Fragment{}
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"document_id": id,
		"fragments":   fragments,
	})
}

func (c *DocumentController) ownerID() (uint, bool) {
	raw := strings.TrimSpace(c.GetString("chat_id"))
	if raw == "" {
		raw = strings.TrimSpace(c.GetString("owner_id"))
	}
	if raw == "" {
		c.JSONError(apperrors.NewValidationError("chat_id is required"))
		return 0, false
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSONError(apperrors.NewValidationError("chat_id must be a non-negative integer: " + raw))
		return 0, false
	}
	return uint(id), true
}
