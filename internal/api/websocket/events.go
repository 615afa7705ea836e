package websocket

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Event types broadcast on the hub.
const (
	EventServerCreated = "server_created"
	EventServerUpdated = "server_updated"
	EventServerDeleted = "server_deleted"
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
)

// Event is a single fan-out message sent to every connected client.
type Event struct {
	Type     string `json:"type"`
	ServerID uint   `json:"server_id,omitempty"`
	UserID   uint   `json:"user_id,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Hub fans server and membership events out to connected websocket clients.
// Clients only listen; inbound messages are drained and discarded.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Broadcast sends the event to every connected client, dropping clients
// whose connection has gone away. Safe to call on a nil hub so handlers can
// run without a hub in tests.
func (h *Hub) Broadcast(event Event) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

// EventsHandler upgrades the HTTP connection and subscribes it to the hub
// until the client disconnects.
func EventsHandler(c *gin.Context, hub *Hub) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	hub.register(conn)
	defer hub.unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading WebSocket message: %v", err)
			}
			return
		}
	}
}
