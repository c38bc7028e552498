package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// AlertMessageType tags fraud alerts pushed to WebSocket clients
const AlertMessageType = "fraud_alert"

// AlertConfig configures the alert hub
type AlertConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	SendBufferSize int
	AllowedOrigins []string
}

// DefaultAlertConfig returns default WebSocket configuration
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 64,
	}
}

// AlertMessage is the frame written to subscribers
type AlertMessage struct {
	Type      string               `json:"type"`
	Event     *fraud.DecisionEvent `json:"event,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type alertConn struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	mu        sync.Mutex
}

func (c *alertConn) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// AlertHub pushes fraud decisions to connected dashboard clients.
type AlertHub struct {
	logger      *zap.Logger
	config      AlertConfig
	upgrader    websocket.Upgrader
	connections map[string]*alertConn
	connMu      sync.RWMutex
	delivery    *deliveryHealth
}

func NewAlertHub(logger *zap.Logger, config AlertConfig) *AlertHub {
	h := &AlertHub{
		logger:      logger,
		config:      config,
		connections: make(map[string]*alertConn),
		delivery:    newDeliveryHealth(deliveryStaleAfter),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *AlertHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and registers the connection.
func (h *AlertHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.AddConnection(uuid.NewString(), conn)
}

// Broadcast queues the decision for every subscriber. Slow subscribers
// whose buffer is full miss the alert instead of blocking the caller.
func (h *AlertHub) Broadcast(ctx context.Context, event fraud.DecisionEvent) error {
	data, err := json.Marshal(AlertMessage{
		Type:      AlertMessageType,
		Event:     &event,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	h.connMu.RLock()
	defer h.connMu.RUnlock()

	dropped := 0
	for id, conn := range h.connections {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case conn.send <- data:
		default:
			dropped++
			h.logger.Warn("alert dropped, send buffer full", zap.String("connection_id", id))
		}
	}

	if dropped > 0 {
		err := fmt.Errorf("alert dropped for %d subscribers", dropped)
		h.delivery.observe(err)
		return err
	}
	h.delivery.observe(nil)
	return nil
}

// AddConnection registers conn and starts its pumps
func (h *AlertHub) AddConnection(id string, conn *websocket.Conn) {
	c := &alertConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, h.config.SendBufferSize),
	}

	h.connMu.Lock()
	h.connections[id] = c
	h.connMu.Unlock()

	go h.writePump(c)
	go h.readPump(c)

	h.logger.Info("alert subscriber connected", zap.String("connection_id", id))
}

// RemoveConnection unregisters a connection; its write pump then closes it.
func (h *AlertHub) RemoveConnection(id string) {
	h.connMu.Lock()
	c, exists := h.connections[id]
	if exists {
		delete(h.connections, id)
	}
	h.connMu.Unlock()

	if exists {
		c.closeSend()
		h.logger.Info("alert subscriber disconnected", zap.String("connection_id", id))
	}
}

func (h *AlertHub) ConnectionCount() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.connections)
}

func (h *AlertHub) IsHealthy() bool {
	return h.delivery.check() == nil
}

// Close disconnects every subscriber
func (h *AlertHub) Close() error {
	h.connMu.Lock()
	conns := h.connections
	h.connections = make(map[string]*alertConn)
	h.connMu.Unlock()

	for _, c := range conns {
		c.closeSend()
	}
	return nil
}

func (h *AlertHub) writePump(c *alertConn) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.RemoveConnection(c.id)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()
			if err != nil {
				h.logger.Debug("websocket write error",
					zap.Error(err),
					zap.String("connection_id", c.id))
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *AlertHub) readPump(c *alertConn) {
	defer h.RemoveConnection(c.id)

	c.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error",
					zap.Error(err),
					zap.String("connection_id", c.id))
			}
			return
		}
		if messageType == websocket.TextMessage {
			h.handleClientMessage(c, message)
		}
	}
}

// handleClientMessage answers application-level pings; anything else is ignored.
func (h *AlertHub) handleClientMessage(c *alertConn, message []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.Debug("invalid client message", zap.String("connection_id", c.id))
		return
	}
	if msg.Type != "ping" {
		return
	}

	data, err := json.Marshal(AlertMessage{Type: "pong", Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}

	h.connMu.RLock()
	defer h.connMu.RUnlock()
	if _, ok := h.connections[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
