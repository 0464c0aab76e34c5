package persist

import (
	"sync"
	"time"
)

// HealthStatus is the sink health reported on /stats.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// sinkHealth tracks consecutive write failures. The outbox worker records
// results while /stats reads them, hence the mutex.
type sinkHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastErr             string
	lastFailure         time.Time
	lastSuccess         time.Time
}

func (h *sinkHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastSuccess = time.Now()
}

func (h *sinkHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err.Error()
	h.lastFailure = time.Now()
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *sinkHealth) statusLocked(threshold int) HealthStatus {
	switch {
	case h.consecutiveFailures == 0:
		return StatusHealthy
	case threshold > 0 && h.consecutiveFailures >= threshold:
		return StatusFailed
	default:
		return StatusDegraded
	}
}

// snapshot returns a consistent copy of the health fields.
func (h *sinkHealth) snapshot(threshold int) (status HealthStatus, failures int, lastErr string, lastFailure time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(threshold), h.consecutiveFailures, h.lastErr, h.lastFailure
}
