package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"horizons/internal/feed"
	"horizons/internal/remote"
)

// wsClient represents one connected changefeed subscriber.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	entity remote.Entity // empty = all entities
	hub    *Hub
}

// Hub bridges the changefeed bus to WebSocket subscribers. Every committed
// mutation is broadcast to every matching subscriber, including the one
// whose write caused it. Clients are expected to tolerate at-least-once,
// may-see-own-writes delivery.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*wsClient]struct{}
	bus         *feed.Bus
	unsubscribe func()
}

// NewHub creates a hub subscribed to the bus.
func NewHub(bus *feed.Bus) *Hub {
	h := &Hub{
		clients: make(map[*wsClient]struct{}),
		bus:     bus,
	}

	h.unsubscribe = bus.Subscribe(func(c feed.Change) {
		data, err := json.Marshal(c.Notification)
		if err != nil {
			slog.Error("marshal change frame", "error", err)
			return
		}
		h.broadcast(c.Entity, data)
	})

	return h
}

// broadcast sends data to every client subscribed to entity.
func (h *Hub) broadcast(entity remote.Entity, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.entity != "" && c.entity != entity {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("changefeed client connected", "entity", c.entity, "clients", len(h.clients))
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("changefeed client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and streams the changefeed. The
// optional ?entity= query restricts the stream to one record type.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		entity: remote.Entity(r.URL.Query().Get("entity")),
		hub:    h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump drains the connection until it closes; subscribers never send
// anything meaningful upstream.
func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close disconnects the hub from the bus and drops all clients.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
