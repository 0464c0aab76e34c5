// Package client connects the terminal viewer to a Kulti relay. Types mirror
// the relay's viewer protocol without importing server packages.
package client

import (
	"encoding/json"

	"github.com/kulti/stream/pkg/kulti"
)

// Typed messages the relay pushes besides snapshots and raw updates.
const (
	MsgViewerJoin  = "viewer_join"
	MsgViewerLeave = "viewer_leave"
	MsgReaction    = "reaction"
)

type Thought struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Milestone struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

type ErrorEntry struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type Stats struct {
	Files    int `json:"files"`
	Commands int `json:"commands"`
}

type Preview struct {
	URL *string `json:"url"`
}

// Snapshot is the full state sent once on connect.
type Snapshot struct {
	Agent        Profile              `json:"agent"`
	Task         kulti.Task           `json:"task"`
	Status       string               `json:"status"`
	Terminal     []kulti.TerminalLine `json:"terminal"`
	Thinking     string               `json:"thinking"`
	Thoughts     []Thought            `json:"thoughts"`
	Code         *kulti.Code          `json:"code"`
	Diff         *kulti.Diff          `json:"diff"`
	Goal         *kulti.Goal          `json:"goal"`
	Milestones   []Milestone          `json:"milestones"`
	RecentErrors []ErrorEntry         `json:"recent_errors"`
	Preview      Preview              `json:"preview"`
	Stats        Stats                `json:"stats"`
	Viewers      int                  `json:"viewers"`
}

// Chat is one viewer chat line.
type Chat struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Time     string `json:"time"`
}

type Reaction struct {
	Emoji string `json:"emoji"`
	From  string `json:"from"`
}

// AgentSummary is one row of GET /agents.
type AgentSummary struct {
	AgentID     string  `json:"agent_id"`
	AgentName   string  `json:"agent_name"`
	Status      string  `json:"status"`
	ViewerCount int     `json:"viewer_count"`
	LastThought *string `json:"last_thought"`
	CurrentTask *string `json:"current_task"`
}

// probe holds the fields used to tell relay messages apart.
type probe struct {
	Type    string          `json:"type"`
	Agent   json.RawMessage `json:"agent"`
	Viewers *int            `json:"viewers"`
	Chat    *Chat           `json:"chat"`
	Emoji   string          `json:"emoji"`
	From    string          `json:"from"`
}
