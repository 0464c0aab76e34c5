// Package stream holds the live state of every streaming agent and the
// viewers watching it.
package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Limits bounds the per-agent histories.
type Limits struct {
	Terminal      int
	Thoughts      int
	Milestones    int
	Errors        int
	PreviewDomain string
}

func DefaultLimits() Limits {
	return Limits{
		Terminal:      100,
		Thoughts:      100,
		Milestones:    50,
		Errors:        10,
		PreviewDomain: "preview.kulti.club",
	}
}

// Registry owns every Agent. Agents are created lazily and live for the
// lifetime of the process.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	limits Limits

	now   func() time.Time
	newID func() string
}

func NewRegistry(limits Limits) *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		limits: limits,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClock replaces the time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// GetOrCreate returns the agent for id, creating it with default state.
func (r *Registry) GetOrCreate(id string) *Agent {
	if a, ok := r.Get(id); ok {
		return a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		return a
	}
	a := r.newAgentLocked(newState(id, r.limits.PreviewDomain, r.now()))
	r.agents[id] = a
	return a
}

func (r *Registry) newAgentLocked(st State) *Agent {
	return &Agent{
		state:   st,
		viewers: make(map[Viewer]ViewerInfo),
		limits:  r.limits,
		now:     r.now,
		newID:   r.newID,
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Agents returns every agent ordered by id.
func (r *Registry) Agents() []*Agent {
	r.mu.RLock()
	result := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, a)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

func (r *Registry) Summaries() []Summary {
	agents := r.Agents()
	out := make([]Summary, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Summary())
	}
	return out
}

// ViewerTotal is the number of viewers across all agents.
func (r *Registry) ViewerTotal() int {
	total := 0
	for _, a := range r.Agents() {
		total += a.ViewerCount()
	}
	return total
}

// Restore installs cached states for agents not already present and returns
// how many were added. Entries that do not decode are skipped.
func (r *Registry) Restore(encoded map[string][]byte) (int, error) {
	var firstErr error
	restored := 0

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, data := range encoded {
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode cached state %q: %w", key, err)
			}
			continue
		}
		if st.AgentID == "" {
			st.AgentID = key
		}
		if _, ok := r.agents[st.AgentID]; ok {
			continue
		}
		normalizeRestored(&st, r.limits.PreviewDomain)
		r.agents[st.AgentID] = r.newAgentLocked(st)
		restored++
	}
	return restored, firstErr
}

func normalizeRestored(st *State, previewDomain string) {
	st.ViewerCount = 0
	if st.Terminal == nil {
		st.Terminal = []TerminalLine{}
	}
	if st.Thoughts == nil {
		st.Thoughts = []Thought{}
	}
	if st.Milestones == nil {
		st.Milestones = []Milestone{}
	}
	if st.RecentErrors == nil {
		st.RecentErrors = []ErrorEntry{}
	}
	if st.Status == "" {
		st.Status = StatusStarting
	}
	if st.AgentName == "" {
		st.AgentName = displayName(st.AgentID)
	}
	if st.Preview.Domain == "" {
		st.Preview.Domain = st.AgentID + "." + previewDomain
	}
}
