// Package gateway pushes session events to connected browsers over
// websockets. Pushes are hints that tell a client to poll now; the HTTP API
// stays the source of truth.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// PushMessage is what a client receives.
type PushMessage struct {
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HubConfig holds configuration for WebSocket connections
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default WebSocket configuration
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type broadcast struct {
	sessionID uuid.UUID
	msg       *PushMessage
}

// Hub tracks websocket connections per session and fans messages out to them
type Hub struct {
	sessions map[uuid.UUID]map[*client]bool
	mu       sync.RWMutex

	upgrader    websocket.Upgrader
	config      HubConfig
	broadcastCh chan broadcast
}

type client struct {
	id        string
	sessionID uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
}

// NewHub creates a new websocket hub
func NewHub(config HubConfig) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcast, 1000),
	}
}

// Start processes broadcasts until ctx is done
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket hub shutting down")
			return
		case b := <-h.broadcastCh:
			h.deliver(b)
		}
	}
}

// Upgrade upgrades an HTTP request to a websocket subscribed to sessionID
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 64),
		hub:       h,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("session_id", sessionID.String()).
		Msg("websocket connection established")
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[c.sessionID] == nil {
		h.sessions[c.sessionID] = make(map[*client]bool)
	}
	h.sessions[c.sessionID][c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.sessions[c.sessionID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.sessions, c.sessionID)
	}
	log.Debug().
		Str("connection_id", c.id).
		Str("session_id", c.sessionID.String()).
		Msg("connection unregistered")
}

// Broadcast queues msg for every connection of sessionID. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(sessionID uuid.UUID, msg *PushMessage) {
	select {
	case h.broadcastCh <- broadcast{sessionID: sessionID, msg: msg}:
	default:
		log.Warn().Str("session_id", sessionID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) deliver(b broadcast) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.sessions[b.sessionID]))
	for c := range h.sessions[b.sessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(b.msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal push message")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("connection_id", c.id).Msg("send buffer full, closing connection")
			h.unregister(c)
			c.conn.Close()
		}
	}

	log.Debug().
		Str("type", b.msg.Type).
		Str("session_id", b.sessionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats returns the number of open connections per session
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.sessions))
	for id, conns := range h.sessions {
		out[id.String()] = len(conns)
	}
	return out
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the read deadline fresh; clients have nothing to say.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
