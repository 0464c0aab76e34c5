package stream

import "encoding/json"

// AgentProfile is the display identity of an agent.
type AgentProfile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Snapshot is the full state message a viewer receives on connect.
type Snapshot struct {
	Agent        AgentProfile   `json:"agent"`
	Task         Task           `json:"task"`
	Status       string         `json:"status"`
	Terminal     []TerminalLine `json:"terminal"`
	Thinking     string         `json:"thinking"`
	Thoughts     []Thought      `json:"thoughts"`
	Code         *Code          `json:"code"`
	Diff         *Diff          `json:"diff"`
	Goal         *Goal          `json:"goal"`
	Milestones   []Milestone    `json:"milestones"`
	RecentErrors []ErrorEntry   `json:"recent_errors"`
	Preview      Preview        `json:"preview"`
	Stats        Stats          `json:"stats"`
	Viewers      int            `json:"viewers"`
}

func (s *State) snapshot() Snapshot {
	c := s.Clone()
	return Snapshot{
		Agent:        AgentProfile{Name: c.AgentName, Avatar: c.AgentAvatar},
		Task:         c.Task,
		Status:       c.Status,
		Terminal:     c.Terminal,
		Thinking:     c.Thinking,
		Thoughts:     c.Thoughts,
		Code:         c.Code,
		Diff:         c.Diff,
		Goal:         c.Goal,
		Milestones:   c.Milestones,
		RecentErrors: c.RecentErrors,
		Preview:      c.Preview,
		Stats:        c.Stats,
		Viewers:      c.ViewerCount,
	}
}

// ViewerInfo identifies a connected viewer.
type ViewerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joined_at"`
}

// Message types pushed to viewers besides raw updates and snapshots.
const (
	TypeViewerJoin  = "viewer_join"
	TypeViewerLeave = "viewer_leave"
)

type viewerJoinMessage struct {
	Type    string     `json:"type"`
	Viewer  ViewerInfo `json:"viewer"`
	Viewers int        `json:"viewers"`
}

type viewerLeaveMessage struct {
	Type     string `json:"type"`
	ViewerID string `json:"viewerId"`
	Viewers  int    `json:"viewers"`
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal message: " + err.Error())
	}
	return data
}
