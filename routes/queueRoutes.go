package routes

import (
	"github.com/gin-gonic/gin"

	"hospital-portal/controllers"
)

// QueueRoutes mounts the queue endpoints behind requireIdentity.
func QueueRoutes(r gin.IRouter, qc *controllers.QueueController, requireIdentity gin.HandlerFunc) {
	q := r.Group("/api/queue", requireIdentity)
	{
		q.GET("/status", qc.GetStatus)
		q.POST("/status", qc.PostStatus)

		q.POST("/start", qc.Start)
		q.POST("/advance", qc.Advance)
		q.POST("/retreat", qc.Retreat)
		q.GET("/roster", qc.GetRoster)
		q.PUT("/roster", qc.EditRoster)
		q.POST("/stop", qc.Stop)

		q.GET("/history", qc.GetHistory)
	}
}
