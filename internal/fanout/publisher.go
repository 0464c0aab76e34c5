package fanout

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Publisher sends envelopes with pg_notify from a background worker so
// ingest never waits on the database.
type Publisher struct {
	db      *sql.DB
	channel string
	origin  string
	queue   chan []byte
	timeout time.Duration

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher publishes on channel, stamping envelopes with origin.
func NewPublisher(db *sql.DB, channel, origin string, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		db:      db,
		channel: channel,
		origin:  origin,
		queue:   make(chan []byte, buffer),
		timeout: 5 * time.Second,
	}
}

func (p *Publisher) Origin() string { return p.origin }

// Publish queues env for delivery without blocking.
func (p *Publisher) Publish(env Envelope) error {
	env.Origin = p.origin
	data, err := encode(env)
	if err != nil {
		p.dropped.Add(1)
		return err
	}
	select {
	case p.queue <- data:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run delivers queued envelopes until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-p.queue:
			if err := p.notify(ctx, data); err != nil {
				p.failed.Add(1)
				slog.Warn("fanout publish failed", "channel", p.channel, "error", err)
				continue
			}
			p.published.Add(1)
		}
	}
}

func (p *Publisher) notify(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, string(data)); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Stats are the publisher counters.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Received  int64 `json:"received,omitempty"`
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}
