package models

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventQueueUpdated = "queue_updated"
	EventWelcome      = "welcome"

	pingInterval = 20 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Client struct {
	Conn *websocket.Conn
	Send chan WSMessage
}

// NewClient wraps an upgraded connection with a buffered send queue.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{Conn: conn, Send: make(chan WSMessage, 256)}
}

// Hub fans queue updates out to every connected viewer.
type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Mutex      sync.Mutex
	logger     *slog.Logger
	done       chan struct{}
}

// NewHub initializes and returns a new Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan WSMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.Mutex.Lock()
			for client := range h.Clients {
				close(client.Send)
				delete(h.Clients, client)
			}
			h.Mutex.Unlock()
			return
		case client := <-h.Register:
			h.Mutex.Lock()
			h.Clients[client] = true
			total := len(h.Clients)
			h.Mutex.Unlock()
			h.logger.Debug("ws client registered", slog.Int("clients", total))
		case client := <-h.Unregister:
			h.Mutex.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
			}
			total := len(h.Clients)
			h.Mutex.Unlock()
			h.logger.Debug("ws client unregistered", slog.Int("clients", total))
		case message := <-h.Broadcast:
			h.Mutex.Lock()
			for client := range h.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
			h.Mutex.Unlock()
		}
	}
}

// Add registers c with the running hub. It reports false once Run has
// returned; the caller then owns closing the connection.
func (h *Hub) Add(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Remove unregisters c. It is a no-op after Run has returned.
func (h *Hub) Remove(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// ClientsCount returns the number of connected viewers.
func (h *Hub) ClientsCount() int {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	return len(h.Clients)
}

// Publish enqueues a queue state for broadcast. It never blocks; a full
// buffer drops the update.
func (h *Hub) Publish(status QueueStatus) {
	select {
	case h.Broadcast <- WSMessage{Event: EventQueueUpdated, Data: status}:
	default:
		h.logger.Warn("ws broadcast buffer full, dropping queue update")
	}
}

// ReadPump drains incoming frames so pongs are processed. Viewers never send
// commands over the socket; mutations go through the HTTP endpoints.
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Remove(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(1024)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("ws read error", slog.String("error", err.Error()))
			}
			break
		}
	}
}

// WritePump sends messages from the Send channel to the WebSocket connection
// and keeps it alive with periodic pings.
func (c *Client) WritePump(h *Hub) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				h.logger.Warn("ws write error", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
