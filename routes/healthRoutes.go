package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthRoutes mounts the unauthenticated liveness probe.
func HealthRoutes(r gin.IRouter) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "hospital-portal"})
	})
}
