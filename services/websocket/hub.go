package websocket

import (
	"encoding/json"
	"sync"
	"time"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub fans messages out to the open portal pages. Clients are indexed by user
// so notifications reach every tab a user has open.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	outbox     chan envelope

	mu      sync.RWMutex
	byUser  map[uint]map[*Client]struct{}
	clients int
}

// Client is one websocket connection of a user.
type Client struct {
	userID uint
	send   chan []byte
}

// envelope is a serialized message; userID 0 means every client.
type envelope struct {
	userID uint
	data   []byte
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SlotUpdate tells booking pages how many seats a session has left.
type SlotUpdate struct {
	SessionID uint `json:"session_id"`
	Available int  `json:"available"`
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbox:     make(chan envelope, 256),
		byUser:     make(map[uint]map[*Client]struct{}),
	}
}

// Run owns the client index. It must be running before connections are served.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*Client]struct{})
			}
			h.byUser[c.userID][c] = struct{}{}
			h.clients++
			h.mu.Unlock()
			logrus.WithField("user_id", c.userID).Debug("WebSocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			logrus.WithField("user_id", c.userID).Debug("WebSocket client disconnected")

		case env := <-h.outbox:
			h.mu.Lock()
			if env.userID != 0 {
				h.deliver(h.byUser[env.userID], env.data)
			} else {
				for _, set := range h.byUser {
					h.deliver(set, env.data)
				}
			}
			h.mu.Unlock()
		}
	}
}

// deliver must be called with mu held. A client whose buffer is full is
// disconnected rather than allowed to stall the hub.
func (h *Hub) deliver(set map[*Client]struct{}, data []byte) {
	for c := range set {
		select {
		case c.send <- data:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	set, ok := h.byUser[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.userID)
	}
	h.clients--
	close(c.send)
}

func (h *Hub) enqueue(userID uint, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Error marshaling WebSocket message")
		return
	}
	select {
	case h.outbox <- envelope{userID: userID, data: data}:
	default:
		logrus.WithField("user_id", userID).Warn("WebSocket outbox is full, message dropped")
	}
}

// BroadcastToUser sends a message to every connection of one user.
func (h *Hub) BroadcastToUser(userID uint, message interface{}) {
	if userID == 0 {
		return
	}
	h.enqueue(userID, message)
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message interface{}) {
	h.enqueue(0, message)
}

// SlotsChanged pushes a session's remaining seats to every open booking page.
func (h *Hub) SlotsChanged(sessionID uint, available int) {
	h.Broadcast(Message{Type: "slots", Data: SlotUpdate{SessionID: sessionID, Available: available}})
}

// GetClientCount returns the number of open connections.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients
}

// ServeFiberWS runs a Fiber websocket connection until it closes.
func (h *Hub) ServeFiberWS(conn *fiberws.Conn, userID uint) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("user_id", userID).Errorf("ServeFiberWS panic: %v", r)
		}
	}()

	client := &Client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.register <- client

	go writePump(client, conn)
	// Fiber closes the conn once this handler returns
	h.readPump(client, conn)
}

func writePump(client *Client, conn *fiberws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(fiberws.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the read deadline moving; portal pages never send data.
func (h *Hub) readPump(client *Client, conn *fiberws.Conn) {
	defer func() { h.unregister <- client }()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("WebSocket closed unexpectedly")
			}
			return
		}
	}
}
