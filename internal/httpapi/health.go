package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shiki0138/hotelbooking-sub004/internal/health"
)

// HealthSource is the view of channel health the endpoint reads.
type HealthSource interface {
	Snapshot() []health.ChannelHealth
	Aggregate() health.AggregateStatus
}

// HealthHandler serves GET /v1/health.
type HealthHandler struct {
	monitor HealthSource
}

func NewHealthHandler(monitor HealthSource) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// HandleHealth reports the aggregate status plus per-channel breaker state.
// Degraded and unhealthy answer 200 as well; the body carries the verdict,
// availability of the HTTP process itself is what the status code means.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"status":    h.monitor.Aggregate(),
		"channels":  h.monitor.Snapshot(),
		"timestamp": time.Now().Unix(),
	})
}
