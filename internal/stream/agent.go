package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Viewer is a connected watcher of one agent. Send must not block; it
// reports false when the message could not be queued.
type Viewer interface {
	Send(data []byte) bool
}

// SessionInfo is the part of an agent's state mirrored into the sessions
// table after every ingest.
type SessionInfo struct {
	AgentID     string
	AgentName   string
	Status      string
	Task        string
	ViewerCount int
	FilesEdited int
	CommandsRun int
}

// Summary is one row of GET /agents.
type Summary struct {
	AgentID     string  `json:"agent_id"`
	AgentName   string  `json:"agent_name"`
	AgentAvatar string  `json:"agent_avatar"`
	Status      string  `json:"status"`
	ViewerCount int     `json:"viewer_count"`
	LastThought *string `json:"last_thought"`
	CurrentFile *string `json:"current_file"`
	CurrentTask *string `json:"current_task"`
	LastUpdate  int64   `json:"last_update"`
}

// Hydration is what a durable store remembers about an agent.
type Hydration struct {
	Name     string
	Avatar   string
	Status   string
	Task     string
	Thoughts []Thought
}

// Agent owns one agent's state and viewer set. Every mutation and every
// delivery to its viewers happens under mu, so viewers observe updates in
// the order they were applied and a joining viewer never misses or
// duplicates an update relative to its snapshot.
type Agent struct {
	mu      sync.Mutex
	state   State
	viewers map[Viewer]ViewerInfo

	limits Limits
	now    func() time.Time
	newID  func() string
}

func (a *Agent) ID() string { return a.state.AgentID }

// Ingest applies u and forwards its raw body to every viewer. It returns the
// number of viewers the body was queued for and the session row to persist.
func (a *Agent) Ingest(u *Update, hook bool) (int, SessionInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.apply(u, hook, a.limits, a.now(), a.newID)
	// Live state is newer than anything the store remembers.
	a.state.Hydrated = true
	delivered := a.broadcastLocked(u.Raw)
	return delivered, a.sessionLocked()
}

// Join registers v, sends it the current snapshot and then tells every
// viewer, v included, the new count.
func (a *Agent) Join(v Viewer, info ViewerInfo) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.viewers[v] = info
	a.state.ViewerCount = len(a.viewers)

	if data, err := json.Marshal(a.state.snapshot()); err != nil {
		slog.Error("encode snapshot", "agent", a.state.AgentID, "error", err)
	} else {
		v.Send(data)
	}

	a.broadcastLocked(mustMarshal(viewerJoinMessage{
		Type:    TypeViewerJoin,
		Viewer:  info,
		Viewers: a.state.ViewerCount,
	}))
	return a.state.ViewerCount
}

// Leave removes v and tells the remaining viewers. Removing an unknown
// viewer is a no-op.
func (a *Agent) Leave(v Viewer) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.viewers[v]
	if !ok {
		return a.state.ViewerCount
	}
	delete(a.viewers, v)
	a.state.ViewerCount = len(a.viewers)

	a.broadcastLocked(mustMarshal(viewerLeaveMessage{
		Type:     TypeViewerLeave,
		ViewerID: info.ID,
		Viewers:  a.state.ViewerCount,
	}))
	return a.state.ViewerCount
}

// Broadcast queues data for every viewer without touching state.
func (a *Agent) Broadcast(data []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.broadcastLocked(data)
}

func (a *Agent) broadcastLocked(data []byte) int {
	n := 0
	for v := range a.viewers {
		if v.Send(data) {
			n++
		}
	}
	return n
}

func (a *Agent) ViewerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.viewers)
}

// State returns a copy of the agent's state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.snapshot()
}

func (a *Agent) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		AgentID:     a.state.AgentID,
		AgentName:   a.state.AgentName,
		AgentAvatar: a.state.AgentAvatar,
		Status:      a.state.Status,
		ViewerCount: a.state.ViewerCount,
		LastUpdate:  a.now().UnixMilli(),
	}
	if n := len(a.state.Thoughts); n > 0 {
		last := truncateRunes(a.state.Thoughts[n-1].Content, 200)
		s.LastThought = &last
	}
	if a.state.Code != nil {
		file := a.state.Code.Filename
		s.CurrentFile = &file
	}
	task := a.state.Task.Title
	s.CurrentTask = &task
	return s
}

func (a *Agent) Hydrated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Hydrated
}

// Hydrate merges remembered identity and recent thoughts into the state and
// marks the agent hydrated. A nil h only marks it. Later calls, and calls on
// an agent that has already taken an ingest, are no-ops.
func (a *Agent) Hydrate(h *Hydration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Hydrated {
		return
	}
	a.state.Hydrated = true
	if h == nil {
		return
	}
	if h.Name != "" {
		a.state.AgentName = h.Name
	}
	if h.Avatar != "" {
		a.state.AgentAvatar = h.Avatar
	}
	if ValidStatus(h.Status) {
		a.state.Status = h.Status
	}
	if h.Task != "" {
		a.state.Task.Title = h.Task
	}
	if len(h.Thoughts) > 0 {
		a.state.Thoughts = keepLast(append(a.state.Thoughts, h.Thoughts...), a.limits.Thoughts)
		a.state.Thinking = h.Thoughts[len(h.Thoughts)-1].Content
	}
}

// Encode serializes the state for the cache, keeping only the most recent
// terminal lines and thoughts. The viewer count is not carried over.
func (a *Agent) Encode(terminalKeep, thoughtKeep int) ([]byte, error) {
	a.mu.Lock()
	s := a.state.Clone()
	a.mu.Unlock()

	s.Terminal = keepLast(s.Terminal, terminalKeep)
	s.Thoughts = keepLast(s.Thoughts, thoughtKeep)
	s.ViewerCount = 0
	s.LastUpdate = a.now().UnixMilli()
	return json.Marshal(s)
}

func (a *Agent) sessionLocked() SessionInfo {
	return SessionInfo{
		AgentID:     a.state.AgentID,
		AgentName:   a.state.AgentName,
		Status:      a.state.Status,
		Task:        a.state.Task.Title,
		ViewerCount: a.state.ViewerCount,
		FilesEdited: a.state.Stats.Files,
		CommandsRun: a.state.Stats.Commands,
	}
}
