// Package websocket streams core events to dispatcher consoles.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// Config tunes the hub.
type Config struct {
	// Buffer is the number of envelopes queued per client before it is
	// disconnected as too slow.
	Buffer         int `json:"buffer"`
	PingSeconds    int `json:"ping_seconds"`
	WriteTimeoutMS int `json:"write_timeout_ms"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.PingSeconds <= 0 {
		c.PingSeconds = 20
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 5000
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics []string
	once   sync.Once
}

func (c *client) wants(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

// Hub fans envelopes out to every connected client. It implements
// events.Sink and serves the upgrade endpoint as an http.Handler.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	log      logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns an empty hub.
func NewHub(cfg Config) *Hub {
	cfg.SetDefaults()
	return &Hub{
		cfg:      cfg,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      logger.New("websocket"),
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request. The optional "topics" query parameter is
// a comma separated list of topic prefixes, e.g. "delivery.,geofence.".
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.cfg.Buffer)}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.topics = append(c.topics, p)
			}
		}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	wait := 3 * time.Duration(h.cfg.PingSeconds) * time.Second
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(wait)) })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(time.Duration(h.cfg.PingSeconds) * time.Second)
	defer ticker.Stop()
	defer c.conn.Close()
	timeout := time.Duration(h.cfg.WriteTimeoutMS) * time.Millisecond
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues env for every interested client. Clients whose queue is full
// are disconnected.
func (h *Hub) Send(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(env.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.log.Warnf("dropping slow websocket client %s", c.conn.RemoteAddr())
		h.drop(c)
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
	}
	return nil
}
