package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/server/handlers"
)

// ActorHeader carries the id of the user performing a request.
const ActorHeader = "X-User-ID"

// New wires the Gin engine with required routes and middlewares.
func New(batchHandler *handlers.BatchHandler, paymentHandler *handlers.PaymentHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(actorMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	farms := api.Group("/farms/:farmID")
	farms.POST("/batches", batchHandler.Create)
	farms.GET("/batches", batchHandler.List)
	farms.GET("/collection-summary", batchHandler.CollectionSummary)
	farms.POST("/productions", batchHandler.StartProduction)
	farms.GET("/payments/preview", paymentHandler.Preview)
	farms.POST("/payments", paymentHandler.Create)
	farms.GET("/payments", paymentHandler.List)

	batches := api.Group("/batches/:id")
	batches.GET("", batchHandler.Get)
	batches.POST("/dispatch", batchHandler.Dispatch)
	batches.POST("/transport", batchHandler.Transport)
	batches.POST("/receive", batchHandler.Receive)
	batches.POST("/confirm-delivery", batchHandler.ConfirmDelivery)
	batches.POST("/quality-test", batchHandler.QualityTest)

	payments := api.Group("/payments/:id")
	payments.GET("", paymentHandler.Get)
	payments.POST("/approve", paymentHandler.Approve)
	payments.POST("/pay", paymentHandler.Pay)
	payments.PATCH("/notes", paymentHandler.UpdateNotes)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// actorMiddleware stores the calling user on the request context.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(ActorHeader); actor != "" {
			c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("actor", appctx.ActorFrom(c.Request.Context())))
	}
}
