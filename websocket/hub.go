package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hospital-portal/models"
	"hospital-portal/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The portal UI is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request, sends the current queue state so the viewer
// does not wait for the next change, then registers the client on the hub.
func ServeWs(h *models.Hub, svc *queue.Service, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initial := models.WSMessage{Event: models.EventWelcome, Data: "connected to server"}
	if status, err := svc.Status(ctx); err == nil {
		initial = models.WSMessage{Event: models.EventQueueUpdated, Data: status}
	} else {
		slog.Error("ws initial status failed", slog.String("error", err.Error()))
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(initial); err != nil {
		conn.Close()
		return
	}

	client := models.NewClient(conn)
	if !h.Add(client) {
		conn.Close()
		return
	}

	go client.WritePump(h)
	go client.ReadPump(h)
}
