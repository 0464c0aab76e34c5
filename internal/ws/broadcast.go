package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned when the viewer limit is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

// client is one viewer connection. It satisfies stream.Viewer: Send never
// blocks, and a viewer whose buffer is full is disconnected.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce    sync.Once
	pingInterval time.Duration
}

func newClient(conn *websocket.Conn, buffer int, pingInterval time.Duration) *client {
	if buffer <= 0 {
		buffer = 64
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &client{
		conn:         conn,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
}

func (c *client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		slog.Warn("ws viewer too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		c.close()
		return false
	}
}

// close signals the write pump to stop. The send channel is never closed,
// so Send stays safe from any goroutine.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump owns all writes to the connection. When it exits the
// connection is closed, which ends the read loop and unregisters the
// viewer.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// Hub tracks every open viewer connection across agents.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	maxConns int
}

// NewHub limits open connections to maxConns; zero means unlimited.
func NewHub(maxConns int) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		maxConns: maxConns,
	}
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		return ErrTooManyConnections
	}
	h.clients[c] = struct{}{}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every viewer, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
