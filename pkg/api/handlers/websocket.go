package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/kubestellar/console-assistant/pkg/api/middleware"
	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const (
	authTimeout    = 5 * time.Second
	sendBufferSize = 256

	MessageTypeState         = "state"
	MessageTypeConfigChanged = "config_changed"
	MessageTypeAuthenticated = "authenticated"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents a WebSocket client
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte
}

// Hub maintains active WebSocket connections and pushes session snapshots
// to every one of them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
	jwtSecret  string
	snapshot   func() interface{}
}

// NewHub creates a new Hub. snapshot produces the message sent to clients
// right after they authenticate.
func NewHub(snapshot func() interface{}) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
	}
}

// SetJWTSecret sets the JWT secret for WebSocket authentication
func (h *Hub) SetJWTSecret(secret string) {
	h.jwtSecret = secret
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[ws] client connected: %s (user %s)", client.id, client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[ws] client disconnected: %s", client.id)

		case <-h.done:
			h.mu.Lock()
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ConnectionCount returns the number of active WebSocket connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends a message to all connected clients. Slow clients whose
// buffer is full miss the message.
func (h *Hub) BroadcastAll(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] failed to marshal message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// OnState pushes every session transition to the connected clients
func (h *Hub) OnState(s assistant.State) {
	h.BroadcastAll(Message{Type: MessageTypeState, Data: NewStateResponse(s)})
}

// HandleConnection handles a new WebSocket connection. The first message
// must be {"type":"auth","token":...}; tokens stay out of URLs and logs.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(authTimeout))

	var authMsg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		log.Printf("[ws] failed to read auth message: %v", err)
		conn.WriteJSON(Message{Type: MessageTypeError, Data: map[string]string{"message": "authentication required"}})
		conn.Close()
		return
	}
	if authMsg.Type != "auth" {
		conn.WriteJSON(Message{Type: MessageTypeError, Data: map[string]string{"message": "authentication required"}})
		conn.Close()
		return
	}

	userID := uuid.Nil
	if h.jwtSecret != "" {
		claims, err := middleware.ValidateJWT(authMsg.Token, h.jwtSecret)
		if err != nil {
			log.Printf("[ws] rejected connection: invalid token: %v", err)
			conn.WriteJSON(Message{Type: MessageTypeError, Data: map[string]string{"message": "invalid token"}})
			conn.Close()
			return
		}
		userID = claims.UserID
	}

	conn.SetReadDeadline(time.Time{})

	client := &Client{
		id:     uuid.New(),
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}

	if err := conn.WriteJSON(Message{Type: MessageTypeAuthenticated, Data: map[string]string{"clientId": client.id.String()}}); err != nil {
		conn.Close()
		return
	}
	if h.snapshot != nil {
		if err := conn.WriteJSON(Message{Type: MessageTypeState, Data: h.snapshot()}); err != nil {
			conn.Close()
			return
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg, ok := <-client.send:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Printf("[ws] write error: %v", err)
					return
				}
			case <-h.done:
				return
			}
		}
	}()

	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		<-writerDone
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case client.send <- []byte(`{"type":"pong","data":null}`):
			default:
			}
		}
	}
}
