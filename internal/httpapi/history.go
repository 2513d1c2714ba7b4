package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler serves GET /v1/history/:subscriber.
type HistoryHandler struct {
	history notify.History
	log     zerolog.Logger
}

func NewHistoryHandler(history notify.History, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, log: log}
}

func (h *HistoryHandler) HandleQuery(c *gin.Context) {
	subscriberID := c.Param("subscriber")
	if subscriberID == "" {
		sendError(c, http.StatusBadRequest, "subscriber is required")
		return
	}

	limit := int64(defaultHistoryLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			sendError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.Query(c.Request.Context(), subscriberID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("subscriber", subscriberID).Msg("history query failed")
		sendError(c, http.StatusInternalServerError, "history query failed")
		return
	}

	sendSuccess(c, map[string]interface{}{
		"total": len(records),
		"data":  records,
	})
}
