// Package cache keeps a copy of every agent's state outside the process so
// a restarted relay can resume where it left off.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kulti/stream/internal/stream"
)

// Backend stores encoded agent states keyed by agent id.
type Backend interface {
	Save(ctx context.Context, agentID string, data []byte) error
	LoadAll(ctx context.Context) (map[string][]byte, error)
	Close() error
}

type WriterConfig struct {
	TerminalKeep  int
	ThoughtKeep   int
	FlushInterval time.Duration
}

// Writer coalesces state writes. Ingest marks an agent dirty; the writer
// saves each dirty agent at most once per flush interval.
type Writer struct {
	backend  Backend
	registry *stream.Registry
	cfg      WriterConfig

	mu    sync.Mutex
	dirty map[string]struct{}

	saved  atomic.Int64
	failed atomic.Int64
}

func NewWriter(backend Backend, registry *stream.Registry, cfg WriterConfig) *Writer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Writer{
		backend:  backend,
		registry: registry,
		cfg:      cfg,
		dirty:    make(map[string]struct{}),
	}
}

func (w *Writer) MarkDirty(agentID string) {
	w.mu.Lock()
	w.dirty[agentID] = struct{}{}
	w.mu.Unlock()
}

// Pending is the number of agents waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirty)
}

// Flush writes every dirty agent now.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	ids := make([]string, 0, len(w.dirty))
	for id := range w.dirty {
		ids = append(ids, id)
	}
	w.dirty = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		agent, ok := w.registry.Get(id)
		if !ok {
			continue
		}
		data, err := agent.Encode(w.cfg.TerminalKeep, w.cfg.ThoughtKeep)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", id, err))
			continue
		}
		if err := w.backend.Save(ctx, id, data); err != nil {
			w.failed.Add(1)
			errs = append(errs, err)
			continue
		}
		w.saved.Add(1)
	}
	return errors.Join(errs...)
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.Flush(final); err != nil {
				slog.Warn("final cache flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				slog.Warn("cache flush failed", "error", err)
			}
		}
	}
}

// Stats reports write counters for /stats.
type Stats struct {
	Pending int   `json:"pending"`
	Saved   int64 `json:"saved"`
	Failed  int64 `json:"failed"`
}

func (w *Writer) Stats() Stats {
	return Stats{Pending: w.Pending(), Saved: w.saved.Load(), Failed: w.failed.Load()}
}

// Restore loads cached states into registry for agents it does not have.
func Restore(ctx context.Context, backend Backend, registry *stream.Registry) (int, error) {
	encoded, loadErr := backend.LoadAll(ctx)
	if len(encoded) == 0 {
		return 0, loadErr
	}
	n, err := registry.Restore(encoded)
	return n, errors.Join(loadErr, err)
}
