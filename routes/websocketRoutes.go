package routes

import (
	"github.com/gin-gonic/gin"

	"hospital-portal/models"
	"hospital-portal/queue"
	"hospital-portal/websocket"
)

// WebSocketRoutes mounts the live push channel.
func WebSocketRoutes(r gin.IRouter, hub *models.Hub, svc *queue.Service, requireIdentity gin.HandlerFunc) {
	r.GET("/ws", requireIdentity, func(c *gin.Context) {
		websocket.ServeWs(hub, svc, c.Writer, c.Request)
	})
}
