package routes

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"hospital-portal/auth"
	"hospital-portal/controllers"
	"hospital-portal/models"
	"hospital-portal/queue"
)

// NewRouter assembles the portal's HTTP surface.
func NewRouter(svc *queue.Service, hub *models.Hub, resolver auth.Resolver, timeout time.Duration, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	requireIdentity := auth.RequireIdentity(resolver, logger)
	qc := controllers.NewQueueController(svc, timeout, logger)

	HealthRoutes(r)
	QueueRoutes(r, qc, requireIdentity)
	if hub != nil {
		WebSocketRoutes(r, hub, svc, requireIdentity)
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if id, ok := auth.IdentityFrom(c); ok {
			attrs = append(attrs, slog.String("caller", id.ID))
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request failed", attrs...)
			return
		}
		logger.Debug("request handled", attrs...)
	}
}
