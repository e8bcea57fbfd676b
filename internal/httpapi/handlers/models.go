package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/common"
)

func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"models": models})
}

type createModelReq struct {
	ID          string  `json:"id" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Host        string  `json:"host" binding:"required"`
	Upstream    string  `json:"upstream"`
	IsImage     bool    `json:"is_image"`
	InputPrice  float64 `json:"input_price"`
	OutputPrice float64 `json:"output_price"`
}

func (h *Handler) CreateModel(c *gin.Context) {
	var req createModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	upstream := req.Upstream
	if upstream == "" {
		upstream = req.ID
	}
	m := ai.Model{
		ID:          req.ID,
		Name:        req.Name,
		Host:        req.Host,
		Upstream:    upstream,
		IsImage:     req.IsImage,
		InputPrice:  req.InputPrice,
		OutputPrice: req.OutputPrice,
	}
	if err := h.Catalog.Create(c.Request.Context(), &m); err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "failed to create model (maybe id already exists)")
		return
	}
	common.OK(c, m)
}
