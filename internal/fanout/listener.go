package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// Handler receives envelopes from other instances.
type Handler func(Envelope)

// Listener holds a dedicated LISTEN connection and hands every envelope not
// published by this instance to the handler.
type Listener struct {
	connString string
	channel    string
	origin     string
	handler    Handler

	connMu sync.Mutex
	conn   *pgx.Conn

	received atomic.Int64
	ignored  atomic.Int64

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

func NewListener(connString, channel, origin string, handler Handler) *Listener {
	return &Listener{
		connString: connString,
		channel:    channel,
		origin:     origin,
		handler:    handler,
	}
}

// Start connects, issues LISTEN and begins receiving in the background.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	if err := l.listen(ctx, conn); err != nil {
		_ = conn.Close(ctx)
		return err
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("fanout listener started", "channel", l.channel, "origin", l.origin)
	return nil
}

func (l *Listener) listen(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("LISTEN %s failed: %w", l.channel, err)
	}
	return nil
}

// receiveLoop is the only goroutine touching the connection once started.
func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) dispatch(payload string) {
	env, err := decode(payload)
	if err != nil {
		slog.Warn("dropping fanout message", "error", err)
		return
	}
	if env.Origin == l.origin {
		l.ignored.Add(1)
		return
	}
	l.received.Add(1)
	l.handler(env)
}

// reconnect replaces the connection, backing off exponentially up to 30s.
func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err == nil {
			err = l.listen(ctx, conn)
			if err != nil {
				_ = conn.Close(ctx)
			}
		}
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn
		slog.Info("fanout listener reconnected", "channel", l.channel)
		return
	}
}

// Received is the number of envelopes handed to the handler.
func (l *Listener) Received() int64 { return l.received.Load() }

// Stop ends the receive loop, then closes the connection.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
