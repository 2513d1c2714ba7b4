// Package httpapi is the thin HTTP front of the dispatch engine. Handlers
// validate and route; every business decision lives behind the Service
// interface.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// UnifiedResponse is the envelope every endpoint answers with.
type UnifiedResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
	Msg  string      `json:"msg"`
}

func sendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, UnifiedResponse{
		Code: http.StatusOK,
		Data: data,
		Msg:  "success",
	})
}

func sendError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, UnifiedResponse{
		Code: httpStatus,
		Msg:  message,
	})
}

// statusFor maps dispatch errors onto HTTP status codes. Suppression and
// duplicates are not errors and never reach here.
func statusFor(err error) int {
	switch {
	case errors.Is(err, notify.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, notify.ErrSubscriberNotFound):
		return http.StatusNotFound
	case errors.Is(err, notify.ErrNoSubscription):
		return http.StatusUnprocessableEntity
	case errors.Is(err, notify.ErrAllChannelsFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
