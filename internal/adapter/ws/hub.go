// Package ws pushes inbox events (message.created, conversation.updated)
// to connected agent dashboards over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the wire envelope for every event pushed to a client.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one subscribed inbox connection.
type client struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub tracks subscribed inbox clients and fans persisted-message and
// handler-change events out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// HandleWS upgrades the request and subscribes the connection to inbox
// events. The connection outlives the HTTP handler, so its read loop runs
// on a background context rather than the request context, which net/http
// cancels as soon as this handler returns.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{ws: ws, cancel: cancel}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("inbox client connected", "remote", r.RemoteAddr)

	// Inbox clients never send application messages; the read loop exists
	// to consume control frames and notice the disconnect.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes one envelope to every subscribed client. Clients whose
// write fails are dropped.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal ws envelope", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("inbox client write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of subscribed clients.
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
		slog.Info("inbox client disconnected")
	}
}
