// Package ui mirrors bridge events to people: a websocket hub for a browser
// or phone UI, and a colored console for the terminal.
package ui

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
)

const writeWait = 100 * time.Millisecond

// Message is the JSON frame sent to websocket clients.
type Message struct {
	Type    events.Kind `json:"type"`
	Payload string      `json:"payload"`
	Seq     uint64      `json:"seq"`
	Time    time.Time   `json:"time"`
}

func messageFor(e events.Event) Message {
	return Message{Type: e.Kind, Payload: e.Payload, Seq: e.Seq, Time: e.Time}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub broadcasts events to every connected websocket client. A client that
// connects late first receives the latest event of each kind.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	latest  map[events.Kind]Message
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		latest:  make(map[events.Kind]Message),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ui", "websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	h.mu.Lock()
	snapshot := make([]Message, 0, len(h.latest))
	for _, kind := range events.Kinds {
		if m, ok := h.latest[kind]; ok {
			snapshot = append(snapshot, m)
		}
	}
	for _, m := range snapshot {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()

	logger.Debug("ui", "🖥️  websocket client %s joined (%d total)", r.RemoteAddr, n)
	go h.readUntilClosed(conn)
}

// readUntilClosed discards inbound frames; a read error means the client
// went away.
func (h *Hub) readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Observe implements events.Observer.
func (h *Hub) Observe(e events.Event) error {
	msg := messageFor(e)

	h.mu.Lock()
	h.latest[e.Kind] = msg
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*websocket.Conn
	for _, conn := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(msg); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	for _, conn := range failed {
		h.remove(conn)
	}
	if len(failed) > 0 {
		logger.Debug("ui", "dropped %d websocket client(s)", len(failed))
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

var _ events.Observer = (*Hub)(nil)
