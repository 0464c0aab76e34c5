// Package ratelimit throttles ingest per agent id.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out a token bucket per key. A full bucket holds one minute
// worth of requests, so a burst of requestsPerMinute is always accepted.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// New returns a limiter allowing perMinute requests per key. perMinute <= 0
// disables limiting.
func New(perMinute int, idleTTL time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow reports whether one more request for key fits in its budget.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.burst <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

// Sweep forgets keys idle for longer than the idle TTL and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps every idle TTL until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	if l.idleTTL <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
