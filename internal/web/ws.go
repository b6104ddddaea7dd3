package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	appLog "wallcal/internal/log"
)

const (
	sendBufferSize   = 16
	changeBufferSize = 8
	pingInterval     = 30 * time.Second
)

// changeMessage tells clients to refetch; the list itself is not sent.
type changeMessage struct {
	Type     string `json:"type"`
	Revision uint64 `json:"revision"`
	Count    int    `json:"count"`
}

// Hub maintains the set of active websocket clients and broadcasts
// messages to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. It is safe to
// call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg as JSON to every client. A client whose buffer is
// full misses the message.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		appLog.Error("web: marshal broadcast", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, starts the write pump and runs the read pump.
// It blocks until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards incoming messages until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusGoingAway, "server closing")
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Accept rejects a foreign Origin with 403 unless it matches a pattern.
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: s.cfg.WebSocketOrigins,
	})
	if err != nil {
		appLog.Warn("web: websocket accept", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	NewClient(s.hub, conn).Run(r.Context())
}

// watchStore subscribes to store changes and broadcasts each one until ctx
// ends. The subscription is in place when watchStore returns.
func (s *Server) watchStore(ctx context.Context) {
	sub := s.store.Subscribe(changeBufferSize)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-sub.C:
				if !ok {
					return
				}
				s.hub.Broadcast(changeMessage{
					Type:     "definitions_changed",
					Revision: c.Revision,
					Count:    len(c.Definitions),
				})
			}
		}
	}()
}
