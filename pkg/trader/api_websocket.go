package trader

import (
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// WebSocketMessage is the frame pushed to connected clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WebSocketHub fans session status out to all connected clients once a
// second.
type WebSocketHub struct {
	trader     *Trader
	broadcast  chan *WebSocketMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	running bool
	stopCh  chan struct{}
}

// NewWebSocketHub creates a hub for one trader session.
func NewWebSocketHub(trader *Trader) *WebSocketHub {
	return &WebSocketHub{
		trader:     trader,
		broadcast:  make(chan *WebSocketMessage, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
		stopCh:     make(chan struct{}),
	}
}

// Handler returns the websocket endpoint. The connection is held open
// until the client goes away; pushes come from the hub.
func (h *WebSocketHub) Handler() websocket.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		h.register <- conn
		defer func() { h.unregister <- conn }()

		// Clients only receive; drain until the peer closes.
		for {
			var discard string
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	})
}

// Start launches the connection manager and the periodic broadcaster.
func (h *WebSocketHub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.mu.Unlock()

	go h.run()
	go h.periodicBroadcast()
}

// Stop disconnects every client.
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)

	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.stopCh:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WebSocket] Client connected, total: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WebSocket] Client disconnected, total: %d", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				conns = append(conns, client)
			}
			h.mu.Unlock()

			for _, client := range conns {
				if err := websocket.JSON.Send(client, message); err != nil {
					select {
					case h.unregister <- client:
					case <-h.stopCh:
						return
					}
				}
			}
		}
	}
}

func (h *WebSocketHub) periodicBroadcast() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.trader.RecordSnapshot()

			h.mu.Lock()
			clientCount := len(h.clients)
			h.mu.Unlock()
			if clientCount == 0 {
				continue
			}

			h.broadcast <- &WebSocketMessage{
				Type:      "status_update",
				Timestamp: time.Now().Format(time.RFC3339),
				Data:      h.trader.Status(),
			}
		}
	}
}
