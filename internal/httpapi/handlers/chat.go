package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/chat"
	"github.com/multimind-ai/multimind/internal/common"
)

// CompleteTurn streams one conversation turn as SSE. Errors before the
// first frame fail the request normally; once streaming has begun the HTTP
// status stays 200 and failures ride inside the frames.
func (h *Handler) CompleteTurn(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	events, err := h.ChatSvc.CompleteTurn(c.Request.Context(), uid, req)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "data: {\"type\":\"error\",\"status\":500,\"message\":\"streaming unsupported\"}\n\n")
		fmt.Fprintf(c.Writer, "data: {\"type\":\"done\"}\n\n")
		// the channel still has to be drained so the orchestrator can finish
		for range events {
		}
		return
	}

	// drain to completion even if the client goes away: the orchestrator
	// keeps generating so final content is persisted
	for ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			h.Log.Error("marshal server event", "err", err)
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"chats": chats})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, c.Param("chat_id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type renameChatReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req renameChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.RenameChat(c.Request.Context(), uid, c.Param("chat_id"), req.Title); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type pinChatReq struct {
	Pinned bool `json:"pinned"`
}

func (h *Handler) PinChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req pinChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.SetPinned(c.Request.Context(), uid, c.Param("chat_id"), req.Pinned); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, c.Param("chat_id")); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) SelectMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid message id")
		return
	}
	if err := h.ChatSvc.SelectMessage(c.Request.Context(), uid, c.Param("chat_id"), messageID); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) CreateShare(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	share, err := h.ChatSvc.CreateShare(c.Request.Context(), uid, c.Param("chat_id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"share_id": share.ID})
}

func (h *Handler) DeleteShare(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.ChatSvc.DeleteShare(c.Request.Context(), uid, c.Param("chat_id")); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

// GetSharedConversation is the public read-only view; no auth.
func (h *Handler) GetSharedConversation(c *gin.Context) {
	shared, msgs, err := h.ChatSvc.SharedMessages(c.Request.Context(), c.Param("share_id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"title":    shared.Title,
		"messages": msgs,
	})
}
