package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	liveWriteTimeout = 5 * time.Second
	liveSendBuffer   = 32
)

// liveEvent is one message on the /api/live feed.
type liveEvent struct {
	Type    string      `json:"type"` // "day" or "toast"
	Date    string      `json:"date"`
	Summary *daySummary `json:"summary,omitempty"`
	Message string      `json:"message,omitempty"`
}

// liveClient is one connected view. Events are queued on send and written
// by the client's own writePump, the connection's only writer.
type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newLiveClient(conn *websocket.Conn) *liveClient {
	return &liveClient{conn: conn, send: make(chan []byte, liveSendBuffer)}
}

// writePump drains send until the hub closes it or a write fails, then closes
// the connection.
func (c *liveClient) writePump(h *realtimeHub) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.Unregister(c)
			return
		}
	}
}

// realtimeHub fans derived-stats updates and persistence toasts out to every
// connected view.
type realtimeHub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

func newRealtimeHub() *realtimeHub {
	return &realtimeHub{clients: make(map[*liveClient]struct{})}
}

func (h *realtimeHub) Register(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes c. Safe to call more than once.
func (h *realtimeHub) Unregister(c *liveClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// removeLocked closes c.send, which ends its writePump. Sends happen only
// under mu, so nothing writes to a closed channel.
func (h *realtimeHub) removeLocked(c *liveClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Count returns the number of connected clients.
func (h *realtimeHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues ev for every client without waiting on any connection.
// A client whose queue is full is not keeping up and is dropped.
func (h *realtimeHub) Broadcast(ev liveEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[live] marshal event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("[live] dropping slow client")
			h.removeLocked(c)
		}
	}
}

// Toast reports a non-blocking failure to the views.
func (h *realtimeHub) Toast(date, message string) {
	h.Broadcast(liveEvent{Type: "toast", Date: date, Message: message})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The view is served from a different origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// live upgrades GET /api/live to a websocket and keeps it registered until the
// client goes away. Incoming messages are ignored.
func (h *Handler) live(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	client := newLiveClient(conn)
	h.hub.Register(client)
	go client.writePump(h.hub)
	defer h.hub.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
