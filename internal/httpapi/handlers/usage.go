package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/limits"
)

func (h *Handler) ListUsage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	records, err := h.UsageRepo.ListForUser(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"usage": records})
}

type byokReq struct {
	Host   string `json:"host" binding:"required"`
	APIKey string `json:"api_key" binding:"required"`
}

func (h *Handler) SetByokKey(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req byokReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	switch req.Host {
	case ai.HostOpenAI, ai.HostOllama, ai.HostOpenRouter:
	default:
		common.Fail(c, http.StatusBadRequest, 10006, "unknown host")
		return
	}
	cred := limits.ByokCredential{UserID: uid, Host: req.Host, APIKey: req.APIKey}
	if err := h.Limits.CreateByok(c.Request.Context(), &cred); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteByokKey(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Limits.DeleteByok(c.Request.Context(), uid, c.Param("host")); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, nil)
}
