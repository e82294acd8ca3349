package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicktill/tracedump/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// client serializes writes: gorilla connections allow one writer at a time
// and both the hub and the ping loop write.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return c.conn.WriteMessage(messageType, data)
}

// Hub pushes series updates to connected websocket clients.
type Hub struct {
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client, config.WSChannelBuffer),
		unregister: make(chan *client, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", count)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", count)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*client
			for c := range h.clients {
				if err := c.write(websocket.TextMessage, message); err != nil {
					log.Printf("WebSocket write error: %v", err)
					failed = append(failed, c)
				}
			}
			h.mu.RUnlock()

			h.mu.Lock()
			for _, c := range failed {
				delete(h.clients, c)
				c.conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues data for every client. When the queue is full the
// message is dropped; the next reload sends a fresh one.
func (h *Hub) Broadcast(data any) error {
	message, err := json.Marshal(data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message:
	default:
		log.Printf("Broadcast channel full, dropping message")
	}
	return nil
}

// HasClients reports whether any client is connected.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// ServeWS upgrades the request and keeps the connection until the client
// goes away. greeting, when non-nil, is sent first.
func (h *Hub) ServeWS(greeting func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		c := &client{conn: conn}

		if greeting != nil {
			if msg, err := json.Marshal(greeting()); err == nil {
				if err := c.write(websocket.TextMessage, msg); err != nil {
					conn.Close()
					return
				}
			}
		}
		h.register <- c

		ctx, cancel := context.WithCancel(r.Context())
		defer func() {
			cancel()
			h.unregister <- c
		}()

		go func() {
			ticker := time.NewTicker(config.WSPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := c.write(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				return
			}
		}
	}
}
