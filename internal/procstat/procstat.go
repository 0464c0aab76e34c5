// Package procstat samples resource usage of the running relay.
package procstat

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is a point-in-time view of the process.
type Sample struct {
	PID        int32   `json:"pid"`
	UptimeSec  int64   `json:"uptime_seconds"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// Sampler reads stats for one process.
type Sampler struct {
	proc    *process.Process
	started time.Time
}

// New samples the current process.
func New() (*Sampler, error) {
	return NewForPID(int32(os.Getpid()))
}

func NewForPID(pid int32) (*Sampler, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	started := time.Now()
	if ms, err := p.CreateTime(); err == nil {
		started = time.UnixMilli(ms)
	}
	return &Sampler{proc: p, started: started}, nil
}

// Sample collects current stats. Fields the platform cannot report stay
// zero.
func (s *Sampler) Sample(ctx context.Context) Sample {
	out := Sample{
		PID:        s.proc.Pid,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		Goroutines: runtime.NumGoroutine(),
	}
	if cpu, err := s.proc.CPUPercentWithContext(ctx); err == nil {
		out.CPUPercent = cpu
	}
	if mem, err := s.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		out.RSSBytes = mem.RSS
	}
	if n, err := s.proc.NumThreadsWithContext(ctx); err == nil {
		out.Threads = n
	}
	return out
}
