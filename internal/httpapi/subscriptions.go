package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// SubscriptionRequest binds POST /v1/subscriptions bodies.
type SubscriptionRequest struct {
	SubscriberID string `json:"subscriber_id" binding:"required"`
	Channel      string `json:"channel" binding:"required"`
	Destination  string `json:"destination" binding:"required"`
}

// SubscriptionHandler registers and revokes channel destinations.
type SubscriptionHandler struct {
	store notify.Store
	log   zerolog.Logger
}

func NewSubscriptionHandler(store notify.Store, log zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{store: store, log: log}
}

func (h *SubscriptionHandler) HandleRegister(c *gin.Context) {
	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	channel := notify.ChannelKind(req.Channel)
	if !channel.Valid() {
		sendError(c, http.StatusBadRequest, "unknown channel: "+req.Channel)
		return
	}

	sub := notify.Subscription{
		ID:           uuid.NewString(),
		SubscriberID: req.SubscriberID,
		Channel:      channel,
		Destination:  req.Destination,
		Status:       notify.SubscriptionActive,
		CreatedAt:    time.Now(),
	}

	if err := h.store.SaveSubscription(c.Request.Context(), sub); err != nil {
		h.log.Error().Err(err).Str("subscriber", req.SubscriberID).Msg("save subscription failed")
		sendError(c, http.StatusInternalServerError, "save subscription failed")
		return
	}

	sendSuccess(c, sub)
}

func (h *SubscriptionHandler) HandleRevoke(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		sendError(c, http.StatusBadRequest, "subscription id is required")
		return
	}

	if err := h.store.InvalidateSubscription(c.Request.Context(), id); err != nil {
		h.log.Error().Err(err).Str("subscription", id).Msg("revoke failed")
		sendError(c, http.StatusInternalServerError, "revoke failed")
		return
	}

	sendSuccess(c, map[string]interface{}{"revoked": id})
}
