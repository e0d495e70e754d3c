package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trading-journal/internal/auth"
	"trading-journal/internal/events"
	"trading-journal/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
	maxMessageSize = 8192

	// MaxChatLength is the longest chat message accepted, in characters.
	MaxChatLength = 2000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers are authenticated by token; CORS origins are enforced on the
	// REST routes only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PresenceClient is one websocket connection of a signed-in user
type PresenceClient struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *PresenceHub
	userID string
}

// inboundMessage is what clients send over the socket
type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userMessage struct {
	userID string
	data   []byte
}

type clientMessage struct {
	client *PresenceClient
	data   []byte
}

// PresenceHub tracks connected users and relays chat and dashboard
// invalidation pushes. The Run goroutine is the only writer of the maps.
type PresenceHub struct {
	clients     map[*PresenceClient]bool
	userClients map[string]map[*PresenceClient]bool
	broadcast   chan []byte
	userCast    chan userMessage
	direct      chan clientMessage
	register    chan *PresenceClient
	unregister  chan *PresenceClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	eventBus    *events.EventBus
	logger      *logging.Logger
}

// NewPresenceHub creates a hub. When bus is non-nil the hub pushes
// DASHBOARD_INVALIDATED to a user's sockets on each of their record writes
// and republishes presence changes on the bus.
func NewPresenceHub(bus *events.EventBus) *PresenceHub {
	h := &PresenceHub{
		clients:     make(map[*PresenceClient]bool),
		userClients: make(map[string]map[*PresenceClient]bool),
		broadcast:   make(chan []byte, sendBufferSize),
		userCast:    make(chan userMessage, sendBufferSize),
		direct:      make(chan clientMessage, sendBufferSize),
		register:    make(chan *PresenceClient),
		unregister:  make(chan *PresenceClient),
		done:        make(chan struct{}),
		eventBus:    bus,
		logger:      logging.WithComponent("websocket"),
	}
	if bus != nil {
		bus.Subscribe(h.onRecordChange, events.RecordEventTypes...)
	}
	return h
}

// Run processes registrations and broadcasts until Stop is called
func (h *PresenceHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.userClients[client.userID] == nil {
				h.userClients[client.userID] = make(map[*PresenceClient]bool)
			}
			h.userClients[client.userID][client] = true
			first := len(h.userClients[client.userID]) == 1
			if first {
				h.fanoutLocked(h.presenceMessageLocked(), "")
			}
			online := h.onlineLocked()
			h.mu.Unlock()

			if first {
				h.publishPresence(online)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			offline := h.removeLocked(client)
			if offline {
				h.fanoutLocked(h.presenceMessageLocked(), "")
			}
			online := h.onlineLocked()
			h.mu.Unlock()

			if offline {
				h.publishPresence(online)
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			h.fanoutLocked(message, "")
			h.mu.Unlock()

		case msg := <-h.userCast:
			h.mu.Lock()
			h.fanoutLocked(msg.data, msg.userID)
			h.mu.Unlock()

		case msg := <-h.direct:
			h.mu.Lock()
			if h.clients[msg.client] {
				select {
				case msg.client.send <- msg.data:
				default:
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every client and ends Run
func (h *PresenceHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// removeLocked drops client and reports whether its user went offline.
func (h *PresenceHub) removeLocked(client *PresenceClient) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client.send)

	userClients, ok := h.userClients[client.userID]
	if !ok {
		return false
	}
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.userClients, client.userID)
		return true
	}
	return false
}

// fanoutLocked queues data for every client, or only userID's clients when
// userID is set. Clients whose buffer is full are dropped.
func (h *PresenceHub) fanoutLocked(data []byte, userID string) {
	wentOffline := false
	for client := range h.clients {
		if userID != "" && client.userID != userID {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", "user_id", client.userID)
			if h.removeLocked(client) {
				wentOffline = true
			}
		}
	}
	if wentOffline {
		h.fanoutLocked(h.presenceMessageLocked(), "")
	}
}

func (h *PresenceHub) onlineLocked() []string {
	users := make([]string, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (h *PresenceHub) presenceMessageLocked() []byte {
	data, _ := json.Marshal(events.Event{
		Type:      events.EventPresenceUpdate,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"online": h.onlineLocked(),
		},
	})
	return data
}

func (h *PresenceHub) publishPresence(online []string) {
	if h.eventBus != nil {
		h.eventBus.PublishPresence(online)
	}
}

// onRecordChange tells the user's open dashboards to refetch.
func (h *PresenceHub) onRecordChange(ev events.Event) {
	if ev.UserID == "" {
		return
	}
	h.BroadcastToUser(ev.UserID, events.Event{
		Type:      events.EventDashboardInvalidated,
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
		Data: map[string]interface{}{
			"kind":      ev.Data["kind"],
			"record_id": ev.Data["record_id"],
			"change":    string(ev.Type),
		},
	})
}

// BroadcastToUser sends an event to a specific user's connections
func (h *PresenceHub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal user event")
		return
	}

	select {
	case h.userCast <- userMessage{userID: userID, data: data}:
	default:
		h.logger.Warn("user broadcast channel full, dropping message", "user_id", userID)
	}
}

// BroadcastToAll sends an event to all connected clients
func (h *PresenceHub) BroadcastToAll(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// GetUserClientCount returns the number of connected clients for a user
func (h *PresenceHub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// GetTotalClientCount returns the total number of connected clients
func (h *PresenceHub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetConnectedUsers returns the sorted ids of users with an open connection
func (h *PresenceHub) GetConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

// ValidateChat trims text and checks its length.
func ValidateChat(text string) (string, bool) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	return text, n >= 1 && n <= MaxChatLength
}

// sendTo queues an event for one registered client.
func (h *PresenceHub) sendTo(c *PresenceClient, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.direct <- clientMessage{client: c, data: data}:
	default:
	}
}

// handleInbound acts on one message read from a client.
func (h *PresenceHub) handleInbound(c *PresenceClient, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendTo(c, errorEvent("message must be a JSON object"))
		return
	}

	switch events.EventType(msg.Type) {
	case events.EventChatMessage:
		text, ok := ValidateChat(msg.Text)
		if !ok {
			h.sendTo(c, errorEvent("chat messages must be between 1 and 2000 characters"))
			return
		}
		h.BroadcastToAll(events.Event{
			Type:      events.EventChatMessage,
			UserID:    c.userID,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"from": c.userID,
				"text": text,
			},
		})
	default:
		h.sendTo(c, errorEvent("unsupported message type "+msg.Type))
	}
}

func errorEvent(message string) events.Event {
	return events.Event{
		Type:      events.EventError,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"message": message},
	}
}

// queue writes an event straight into the client's buffer. Only safe before
// the client is registered with the hub.
func (c *PresenceClient) queue(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *PresenceClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *PresenceClient) readPump() {
	log := logging.WebSocketContext(c.userID)
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket read error")
			}
			return
		}
		c.hub.handleInbound(c, raw)
	}
}

// handlePresenceWebSocket serves GET /api/ws. Browsers cannot set headers on
// websocket upgrades, so the token may also come from ?token=.
func (s *Server) handlePresenceWebSocket(c *gin.Context) {
	token, err := auth.TokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   auth.ErrUnauthorized.Code,
			"message": "authentication required for WebSocket connection",
		})
		return
	}
	claims, err := s.authService.GetJWTManager().ValidateAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   auth.ErrInvalidToken.Code,
			"message": "invalid or expired token",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WebSocketContext(claims.UserID).WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &PresenceClient{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    s.hub,
		userID: claims.UserID,
	}

	// Queued before registering so the welcome precedes any broadcast
	client.queue(events.Event{
		Type:      events.EventConnected,
		UserID:    claims.UserID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": "WebSocket connection established",
			"user_id": claims.UserID,
		},
	})

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	logging.WebSocketContext(claims.UserID).Debug("websocket connected")

	go client.writePump()
	go client.readPump()
}

// handleGetPresence serves GET /api/presence
func (s *Server) handleGetPresence(c *gin.Context) {
	online := s.hub.GetConnectedUsers()
	successResponse(c, gin.H{
		"online": online,
		"count":  len(online),
	})
}
