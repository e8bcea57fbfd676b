package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/config"
	"github.com/multimind-ai/multimind/internal/httpapi/handlers"
	"github.com/multimind-ai/multimind/internal/httpapi/middleware"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/store/redisstore"
)

func NewRouter(h *handlers.Handler, cfg config.Config, rds *redisstore.Store, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.RateLimit(rds, cfg.RateLimitPerWindow, cfg.RateLimitWindow, log))

	r.GET("/ping", h.Ping)

	// captcha
	r.POST("/captcha", h.SendCaptcha)

	// users register
	r.POST("/users", h.CreateUser)

	// auth
	r.POST("/login", h.Login)

	// public read-only view of a shared conversation
	r.GET("/shares/:share_id", h.GetSharedConversation)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// model catalog
	authGroup.GET("/models", h.ListModels)
	authGroup.POST("/models", h.CreateModel)

	// turn streaming (JWT required)
	authGroup.POST("/chat/completions/stream", h.CompleteTurn)

	// chat management
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/:chat_id/messages", h.ListChatMessages)
	authGroup.PATCH("/chats/:chat_id/title", h.RenameChat)
	authGroup.PATCH("/chats/:chat_id/pin", h.PinChat)
	authGroup.DELETE("/chats/:chat_id", h.DeleteChat)
	authGroup.POST("/chats/:chat_id/messages/:message_id/select", h.SelectMessage)
	authGroup.POST("/chats/:chat_id/share", h.CreateShare)
	authGroup.DELETE("/chats/:chat_id/share", h.DeleteShare)

	// attachments
	authGroup.POST("/files", h.UploadAttachment)
	authGroup.GET("/files/:file_id", h.DownloadAttachment)

	// usage & BYOK credentials
	authGroup.GET("/usage", h.ListUsage)
	authGroup.PUT("/byok", h.SetByokKey)
	authGroup.DELETE("/byok/:host", h.DeleteByokKey)

	return r
}
