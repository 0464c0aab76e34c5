// Package persist writes ingested events to durable storage off the hot
// path. Writes are best effort: failures are logged and counted, never
// retried.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrOutboxFull is returned by Enqueue when the queue is at capacity.
	ErrOutboxFull = errors.New("persistence outbox full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("persistence outbox closed")
)

// Sink is a durable store for ingested events.
type Sink interface {
	PersistIngest(ctx context.Context, rec IngestRecord) error
	PersistChat(ctx context.Context, rec ChatRecord) error
}

// Job is one queued write. Exactly one of Ingest and Chat is set.
type Job struct {
	Ingest *IngestRecord
	Chat   *ChatRecord
}

func (j Job) agentID() string {
	switch {
	case j.Ingest != nil:
		return j.Ingest.Session.AgentID
	case j.Chat != nil:
		return j.Chat.AgentID
	}
	return ""
}

type OutboxConfig struct {
	Capacity         int
	WriteTimeout     time.Duration
	FailureThreshold int
}

// OutboxStats is the observable state of the outbox.
type OutboxStats struct {
	Depth       int          `json:"depth"`
	Capacity    int          `json:"capacity"`
	Enqueued    int64        `json:"enqueued"`
	Dropped     int64        `json:"dropped"`
	Persisted   int64        `json:"persisted"`
	Failed      int64        `json:"failed"`
	Health      HealthStatus `json:"health"`
	Failures    int          `json:"consecutive_failures"`
	LastError   string       `json:"last_error,omitempty"`
	LastFailure *time.Time   `json:"last_failure,omitempty"`
}

// Outbox is a bounded queue drained by a single worker that hands each job
// to the sink under a timeout.
type Outbox struct {
	sink Sink
	cfg  OutboxConfig

	mu     sync.RWMutex
	closed bool
	queue  chan Job

	health    sinkHealth
	startOnce sync.Once
	done      chan struct{}

	enqueued  atomic.Int64
	dropped   atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
}

func NewOutbox(sink Sink, cfg OutboxConfig) *Outbox {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Outbox{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan Job, cfg.Capacity),
		done:  make(chan struct{}),
	}
}

// Start launches the worker. It runs until Close; jobs already queued are
// still written after Close.
func (o *Outbox) Start() {
	o.startOnce.Do(func() { go o.run() })
}

// Enqueue queues job without blocking.
func (o *Outbox) Enqueue(job Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.queue <- job:
		o.enqueued.Add(1)
		return nil
	default:
		o.dropped.Add(1)
		slog.Warn("persistence outbox full, dropping job", "agent", job.agentID(), "capacity", o.cfg.Capacity)
		return ErrOutboxFull
	}
}

// Close stops accepting jobs and waits for the queue to drain or ctx to
// expire.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	o.Start()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain outbox: %w (%d jobs left)", ctx.Err(), len(o.queue))
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	for job := range o.queue {
		o.process(job)
	}
}

func (o *Outbox) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.WriteTimeout)
	defer cancel()

	var err error
	switch {
	case job.Ingest != nil:
		err = o.sink.PersistIngest(ctx, *job.Ingest)
	case job.Chat != nil:
		err = o.sink.PersistChat(ctx, *job.Chat)
	default:
		return
	}

	if err != nil {
		o.failed.Add(1)
		o.health.recordFailure(err)
		slog.Warn("persist failed", "agent", job.agentID(), "error", err)
		return
	}
	o.persisted.Add(1)
	o.health.recordSuccess()
}

func (o *Outbox) Stats() OutboxStats {
	status, failures, lastErr, lastFailure := o.health.snapshot(o.cfg.FailureThreshold)
	s := OutboxStats{
		Depth:     len(o.queue),
		Capacity:  o.cfg.Capacity,
		Enqueued:  o.enqueued.Load(),
		Dropped:   o.dropped.Load(),
		Persisted: o.persisted.Load(),
		Failed:    o.failed.Load(),
		Health:    status,
		Failures:  failures,
		LastError: lastErr,
	}
	if !lastFailure.IsZero() {
		s.LastFailure = &lastFailure
	}
	return s
}
