package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/inbox"
)

const (
	defaultInboxLimit = 20
	maxInboxLimit     = 100
)

// InboxQueryRequest binds GET /v1/inbox query parameters.
type InboxQueryRequest struct {
	UserID string `form:"user_id" binding:"required"`
	Limit  int64  `form:"limit"`
}

// InboxMarkReadRequest binds POST /v1/inbox/mark_read bodies.
type InboxMarkReadRequest struct {
	UserID string   `json:"user_id" binding:"required"`
	IDs    []string `json:"ids" binding:"required,min=1"`
}

// InboxHandler serves the in-app inbox endpoints.
type InboxHandler struct {
	store inbox.Store
	log   zerolog.Logger
}

func NewInboxHandler(store inbox.Store, log zerolog.Logger) *InboxHandler {
	return &InboxHandler{store: store, log: log}
}

func (h *InboxHandler) HandleQuery(c *gin.Context) {
	var req InboxQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultInboxLimit
	}
	if req.Limit > maxInboxLimit {
		req.Limit = maxInboxLimit
	}

	messages, err := h.store.List(c.Request.Context(), req.UserID, req.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("user", req.UserID).Msg("inbox query failed")
		sendError(c, http.StatusInternalServerError, "inbox query failed")
		return
	}

	sendSuccess(c, map[string]interface{}{
		"total": len(messages),
		"data":  messages,
	})
}

func (h *InboxHandler) HandleMarkRead(c *gin.Context) {
	var req InboxMarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now()
	updated := 0
	for _, id := range req.IDs {
		if err := h.store.MarkRead(c.Request.Context(), req.UserID, id, now); err != nil {
			h.log.Warn().Err(err).Str("user", req.UserID).Str("message", id).Msg("mark read failed")
			continue
		}
		updated++
	}

	sendSuccess(c, map[string]interface{}{"updated": updated})
}
