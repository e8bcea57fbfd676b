package handlers

import (
	"gorm.io/gorm"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/chat"
	"github.com/multimind-ai/multimind/internal/config"
	"github.com/multimind-ai/multimind/internal/files"
	"github.com/multimind-ai/multimind/internal/httpapi/middleware"
	"github.com/multimind-ai/multimind/internal/limits"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/store/redisstore"
	"github.com/multimind-ai/multimind/internal/usage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB        *gorm.DB
	Cfg       config.Config
	Log       *logger.Logger
	Redis     *redisstore.Store
	ChatSvc   *chat.Service
	Catalog   *ai.Catalog
	Files     *files.Store
	UsageRepo *usage.Repo
	Limits    *limits.Repo
}

func NewHandler(db *gorm.DB, cfg config.Config, log *logger.Logger, rds *redisstore.Store, chatSvc *chat.Service, catalog *ai.Catalog, fileStore *files.Store, usageRepo *usage.Repo, limitsRepo *limits.Repo) *Handler {
	return &Handler{
		DB:        db,
		Cfg:       cfg,
		Log:       log,
		Redis:     rds,
		ChatSvc:   chatSvc,
		Catalog:   catalog,
		Files:     fileStore,
		UsageRepo: usageRepo,
		Limits:    limitsRepo,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
