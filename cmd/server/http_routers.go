package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shiki0138/hotelbooking-sub004/internal/httpapi"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

//
// Middleware
//

// corsMiddleware allows every origin. Tighten with a whitelist when the API
// is exposed beyond internal consumers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

//
// Async front
//

// mirroredQueue feeds the local priority queue and, when NSQ is configured,
// mirrors accepted requests to the per-tier topics. Mirror failures are
// logged but never block local acceptance.
type mirroredQueue struct {
	app *AppContext
}

func (q *mirroredQueue) Enqueue(req notify.NotificationRequest) error {
	if err := q.app.Queue.Enqueue(req); err != nil {
		return err
	}
	if q.app.Mirror != nil {
		if err := q.app.Mirror.Publish(context.Background(), req); err != nil {
			q.app.Log.Warn().Err(err).Str("request", req.ID).Msg("nsq mirror publish failed")
		}
	}
	return nil
}

var _ httpapi.Enqueuer = (*mirroredQueue)(nil)

//
// Router construction
//

// BuildGinRouter assembles every HTTP route of the engine.
func BuildGinRouter(app *AppContext) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	notificationHandler := httpapi.NewNotificationHandler(
		app.Dispatcher,
		&mirroredQueue{app: app},
		app.Log,
	)
	healthHandler := httpapi.NewHealthHandler(app.Monitor)
	historyHandler := httpapi.NewHistoryHandler(app.History, app.Log)
	inboxHandler := httpapi.NewInboxHandler(app.InboxStore, app.Log)
	subscriptionHandler := httpapi.NewSubscriptionHandler(app.Store, app.Log)

	apiV1 := router.Group("/v1")
	{
		apiV1.POST("/notifications", notificationHandler.HandleSend)
		apiV1.POST("/notifications/batch", notificationHandler.HandleSendBatch)

		apiV1.GET("/health", healthHandler.HandleHealth)
		apiV1.GET("/history/:subscriber", historyHandler.HandleQuery)

		apiV1.GET("/inbox", inboxHandler.HandleQuery)
		apiV1.POST("/inbox/mark_read", inboxHandler.HandleMarkRead)

		apiV1.POST("/subscriptions", subscriptionHandler.HandleRegister)
		apiV1.DELETE("/subscriptions/:id", subscriptionHandler.HandleRevoke)
	}

	return router
}
