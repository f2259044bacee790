package api

import (
	"context"
	"sync"
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSHub tracks WebSocket clients by session and fans messages out to them.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]bool

	broadcast  chan envelope
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	session string
	send    chan WSMessage
}

type envelope struct {
	session string    // empty targets every client
	client  *WSClient // set for a single-client message
	build   func() WSMessage
	msg     WSMessage
}

const clientBuffer = 16

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// NewClient creates a client bound to a session. It is not registered.
func NewClient(session string) *WSClient {
	return &WSClient{session: session, send: make(chan WSMessage, clientBuffer)}
}

// Run is the hub event loop. It returns when ctx is done, closing every
// client's send channel.
func (h *WSHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *WSHub) deliver(env envelope) {
	var slow []*WSClient

	msg := env.msg
	if env.build != nil {
		msg = env.build()
	}

	h.mu.RLock()
	for c := range h.clients {
		if env.client != nil && c != env.client {
			continue
		}
		if env.session != "" && c.session != env.session {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	// Slow clients are disconnected; the page reconnects and gets fresh state.
	h.mu.Lock()
	for _, c := range slow {
		if h.clients[c] {
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every connected client.
func (h *WSHub) Broadcast(msg WSMessage) {
	h.enqueue(envelope{msg: msg})
}

// BroadcastTo sends msg to the clients of one session.
func (h *WSHub) BroadcastTo(session string, msg WSMessage) {
	if session == "" {
		return
	}
	h.enqueue(envelope{session: session, msg: msg})
}

// SendTo queues a message for c alone. build runs on the hub goroutine at
// delivery, after every message queued before it has been delivered.
func (h *WSHub) SendTo(c *WSClient, build func() WSMessage) {
	select {
	case h.broadcast <- envelope{client: c, build: build}:
	case <-h.done:
	}
}

func (h *WSHub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClients returns the number of clients connected for session.
func (h *WSHub) SessionClients(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.session == session {
			n++
		}
	}
	return n
}

// Register adds a client to the hub. It reports false if the hub has stopped.
func (h *WSHub) Register(c *WSClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(c *WSClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
