package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/haneul-dev/cribwatch/internal/pipeline"
)

// clientBuffer is the per-client event backlog. A client that falls this far
// behind is disconnected rather than allowed to stall the hub.
const clientBuffer = 32

// Hub fans pipeline events out to connected websocket clients. It implements
// [pipeline.Notifier]; Publish never blocks.
type Hub struct {
	mu      sync.Mutex
	clients map[chan pipeline.Event]struct{}
	closed  bool
}

// Compile-time interface check.
var _ pipeline.Notifier = (*Hub)(nil)

// NewHub returns an empty hub ready to accept clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan pipeline.Event]struct{})}
}

// Publish delivers ev to every connected client. Clients whose buffer is
// full are dropped; a feed that misses events is useless anyway and must
// reconnect.
func (h *Hub) Publish(ev pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			delete(h.clients, ch)
			close(ch)
			slog.Warn("event feed client too slow, dropping")
		}
	}
}

// Handle upgrades the request to a websocket and streams pipeline events
// as JSON text messages until the client disconnects or the hub closes.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local demo UI; no cross-origin secrets
	})
	if err != nil {
		slog.Warn("event feed accept failed", "err", err)
		return
	}

	ch := h.register()
	if ch == nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(ch)

	// CloseRead discards inbound messages and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("event feed marshal failed", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// register adds a new client channel, or returns nil if the hub is closed.
func (h *Hub) register() chan pipeline.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	ch := make(chan pipeline.Event, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch
}

func (h *Hub) unregister(ch chan pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects future connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
	return nil
}
