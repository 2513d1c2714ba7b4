package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// ==================== defaults ====================

const (
	defaultSendTimeout  = 10 * time.Second
	defaultBatchTimeout = 60 * time.Second
	maxBatchRequests    = 500
)

// ==================== service interfaces ====================

// Service is the dispatch surface the HTTP layer talks to. It decouples
// handlers from the engine implementation.
type Service interface {
	Send(ctx context.Context, req notify.NotificationRequest) (*notify.DispatchResult, error)
	SendBatch(ctx context.Context, requests []notify.NotificationRequest) notify.BatchResult
}

// Enqueuer accepts a request for asynchronous dispatch.
type Enqueuer interface {
	Enqueue(req notify.NotificationRequest) error
}

// ==================== NotificationHandler ====================

// NotificationHandler serves POST /v1/notifications and its batch variant.
// mode=async hands the request to the priority queue and answers immediately;
// the default mode dispatches inline and returns the full result.
type NotificationHandler struct {
	service Service
	queue   Enqueuer
	log     zerolog.Logger
}

func NewNotificationHandler(service Service, queue Enqueuer, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, queue: queue, log: log}
}

// HandleSend processes a single notification request.
func (h *NotificationHandler) HandleSend(c *gin.Context) {
	var req notify.NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.SubscriberID == "" {
		sendError(c, http.StatusBadRequest, "subscriber_id is required")
		return
	}

	if c.Query("mode") == "async" && h.queue != nil {
		h.handleAsync(c, req)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultSendTimeout)
	defer cancel()

	result, err := h.service.Send(ctx, req)
	if err != nil {
		h.log.Warn().Err(err).Str("subscriber", req.SubscriberID).Msg("dispatch rejected")
		sendError(c, statusFor(err), err.Error())
		return
	}

	sendSuccess(c, result)
}

// handleAsync enqueues the request for the tier workers.
func (h *NotificationHandler) handleAsync(c *gin.Context, req notify.NotificationRequest) {
	if err := h.queue.Enqueue(req); err != nil {
		h.log.Warn().Err(err).Str("subscriber", req.SubscriberID).Msg("enqueue rejected")
		sendError(c, http.StatusServiceUnavailable, "queue full, retry later")
		return
	}

	sendSuccess(c, map[string]interface{}{
		"queued":    true,
		"priority":  req.Priority,
		"timestamp": time.Now().Unix(),
	})
}

// HandleSendBatch processes up to maxBatchRequests notifications in one call.
func (h *NotificationHandler) HandleSendBatch(c *gin.Context) {
	var body struct {
		Requests []notify.NotificationRequest `json:"requests" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Requests) > maxBatchRequests {
		sendError(c, http.StatusRequestEntityTooLarge, "batch exceeds limit")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultBatchTimeout)
	defer cancel()

	batch := h.service.SendBatch(ctx, body.Requests)

	sendSuccess(c, map[string]interface{}{
		"total_sent":   batch.TotalSent,
		"total_failed": batch.TotalFailed,
		"results":      batch.Results,
	})
}
