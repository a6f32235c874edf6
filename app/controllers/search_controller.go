package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
)

var validate = validator.New()

// Searcher 相似度检索
type Searcher interface {
	Search(ctx context.Context, question string, k int) ([]knowledge.ScoredFragment, error)
}

// SearchController 检索控制器
type SearchController struct {
	BaseController
	Retrieval Searcher
}

type searchRequest struct {
	Question string `json:"question" validate:"required"`
	K        int    `json:"k" validate:"gte=0"`
}

type scoredFragment struct {
	ID         uint    `json:"id"`
	DocumentID uint    `json:"document_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Search 按问题检索最相近的片段，k缺省时使用服务端默认值
func (c *SearchController) Search() {
	var req searchRequest
	if err := json.NewDecoder(c.Ctx.Request.Body).Decode(&req); err != nil {
		c.JSONError(apperrors.NewValidationError("malformed request body").WithCause(err))
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(err)
		return
	}

	results, err := c.Retrieval.Search(c.Ctx.Request.Context(), req.Question, req.K)
	if err != nil {
		c.JSONError(err)
		return
	}

	fragments := make([]scoredFragment, 0, len(results))
	for _, r := range results {
		fragments = append(fragments, scoredFragment{
			ID:         r.Fragment.ID,
			DocumentID: r.Fragment.DocumentID,
			Content:    r.Fragment.Content,
			Score:      r.Score,
		})
	}
	c.JSON(http.StatusOK, map[string]interface{}{"fragments": fragments})
}
