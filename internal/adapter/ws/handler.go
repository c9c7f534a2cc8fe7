// Package ws pushes workspace lifecycle events to connected clients over
// WebSocket. The hub fans one event out to every connection; clients never
// send anything meaningful upstream, their read side only detects disconnects.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope every event is delivered in.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	sock   *websocket.Conn
	cancel context.CancelFunc
}

// Hub tracks the active connections and broadcasts to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// HandleWS upgrades the request to a WebSocket connection and registers it
// with the hub until the peer goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is enforced by the CORS middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{sock: sock, cancel: cancel}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("event subscriber connected", "remote", r.RemoteAddr)
	go h.drain(ctx, c)
}

// drain consumes inbound frames until the connection errors, which is how
// peer disconnects surface.
func (h *Hub) drain(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		_ = c.sock.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := c.sock.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast delivers msg to every connected client. Clients whose write
// fails are dropped from the hub.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal ws message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	var dead []*client
	for c := range h.clients {
		if err := c.sock.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("ws write failed, dropping client", "error", err)
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.remove(c)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("event subscriber disconnected")
	}
}
