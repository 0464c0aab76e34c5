package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/kulti/stream/pkg/kulti"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// WSClient manages the viewer connection for one agent at a time.
type WSClient struct {
	base string
	name string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes
	agent   string
	conn    *websocket.Conn
	pingCtx context.CancelFunc
}

// NewWSClient connects to base (e.g. "ws://127.0.0.1:8080/") as name,
// watching agent.
func NewWSClient(base, agent, name string) *WSClient {
	return &WSClient{base: base, agent: agent, name: name}
}

// --- Bubble Tea messages ---

type ConnectedMsg struct{ Agent string }

type DisconnectedMsg struct{ Err error }

type SnapshotMsg struct{ Snapshot Snapshot }

// UpdateMsg is one raw ingest body forwarded by the relay.
type UpdateMsg struct{ Payload *kulti.Payload }

type ViewersMsg struct{ Count int }

type ChatMsg struct{ Chat Chat }

type ReactionMsg struct{ Reaction Reaction }

// Agent is the agent currently watched.
func (c *WSClient) Agent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// URL is the connect URL for the current agent.
func (c *WSClient) URL() string {
	c.mu.Lock()
	agent := c.agent
	c.mu.Unlock()

	u, err := url.Parse(c.base)
	if err != nil {
		return c.base
	}
	q := u.Query()
	q.Set("agent", agent)
	if c.name != "" {
		q.Set("name", c.name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Listen returns a command that connects, retrying with backoff.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL(), nil)
			if err != nil {
				slog.Debug("ws dial failed", "error", err, "retry", delay)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			agent := c.agent
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			return ConnectedMsg{Agent: agent}
		}
	}
}

// ReadLoop returns a command that yields the next relay message. It is
// re-issued after every message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}
			if msg := Decode(data); msg != nil {
				return msg
			}
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Switch watches another agent. The current connection is closed so the
// pending ReadLoop reports a disconnect and Listen dials the new agent.
func (c *WSClient) Switch(agent string) {
	c.mu.Lock()
	c.agent = agent
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close drops the connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.pingCtx != nil {
		c.pingCtx()
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SendReaction sends an emoji to everyone watching.
func (c *WSClient) SendReaction(emoji string) error {
	return c.write(map[string]string{"type": MsgReaction, "emoji": emoji})
}

// SendChat sends a chat line. username may be empty.
func (c *WSClient) SendChat(message, username string) error {
	msg := map[string]string{"type": "chat", "message": message}
	if username != "" {
		msg["username"] = username
	}
	return c.write(msg)
}

func (c *WSClient) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// Decode turns one relay message into a Bubble Tea message. Unrecognised
// input yields nil.
func Decode(data []byte) tea.Msg {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	switch {
	case p.Type == MsgViewerJoin || p.Type == MsgViewerLeave:
		if p.Viewers != nil {
			return ViewersMsg{Count: *p.Viewers}
		}
		return nil
	case p.Type == MsgReaction:
		return ReactionMsg{Reaction: Reaction{Emoji: p.Emoji, From: p.From}}
	case p.Chat != nil:
		return ChatMsg{Chat: *p.Chat}
	case len(p.Agent) > 0 && p.Viewers != nil:
		var snap Snapshot
		if json.Unmarshal(data, &snap) != nil {
			return nil
		}
		return SnapshotMsg{Snapshot: snap}
	}

	var payload kulti.Payload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Empty() {
		return nil
	}
	return UpdateMsg{Payload: &payload}
}
