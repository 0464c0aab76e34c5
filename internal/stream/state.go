package stream

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Status values an agent can be in.
const (
	StatusStarting = "starting"
	StatusLive     = "live"
	StatusWorking  = "working"
	StatusThinking = "thinking"
	StatusPaused   = "paused"
	StatusDone     = "done"
	StatusOffline  = "offline"
)

var validStatuses = map[string]bool{
	StatusStarting: true,
	StatusLive:     true,
	StatusWorking:  true,
	StatusThinking: true,
	StatusPaused:   true,
	StatusDone:     true,
	StatusOffline:  true,
}

// ValidStatus reports whether s is one of the known agent statuses.
func ValidStatus(s string) bool { return validStatuses[s] }

type TerminalLine struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Thought struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Code struct {
	Filename  string `json:"filename"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp,omitempty"`
}

type DiffHunk struct {
	Start   int      `json:"start"`
	Removed []string `json:"removed"`
	Added   []string `json:"added"`
}

type Diff struct {
	Filename string     `json:"filename"`
	Language string     `json:"language"`
	Hunks    []DiffHunk `json:"hunks"`
}

type Task struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Goal struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Milestone struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
	Timestamp string `json:"timestamp"`
}

type ErrorEntry struct {
	Message          string `json:"message"`
	File             string `json:"file,omitempty"`
	Line             *int   `json:"line,omitempty"`
	Stack            string `json:"stack,omitempty"`
	RecoveryStrategy string `json:"recovery_strategy,omitempty"`
	Timestamp        string `json:"timestamp"`
}

type Stats struct {
	Files     int   `json:"files"`
	Commands  int   `json:"commands"`
	StartTime int64 `json:"start_time"`
}

// Preview is the live preview link. URL is null until the agent sets one.
type Preview struct {
	URL    *string `json:"url"`
	Domain string  `json:"domain"`
}

// State is the full per-agent state. Its JSON form is the cache record.
type State struct {
	AgentID      string         `json:"agent_id"`
	AgentName    string         `json:"agent_name"`
	AgentAvatar  string         `json:"agent_avatar"`
	Status       string         `json:"status"`
	Task         Task           `json:"task"`
	Terminal     []TerminalLine `json:"terminal"`
	Thinking     string         `json:"thinking"`
	Thoughts     []Thought      `json:"thoughts"`
	Code         *Code          `json:"code"`
	Diff         *Diff          `json:"diff"`
	Goal         *Goal          `json:"goal"`
	Milestones   []Milestone    `json:"milestones"`
	RecentErrors []ErrorEntry   `json:"recent_errors"`
	Stats        Stats          `json:"stats"`
	Preview      Preview        `json:"preview"`
	ViewerCount  int            `json:"viewer_count"`
	Hydrated     bool           `json:"hydrated"`
	LastUpdate   int64          `json:"last_update"`
}

func newState(id, previewDomain string, now time.Time) State {
	return State{
		AgentID:      id,
		AgentName:    displayName(id),
		Status:       StatusStarting,
		Task:         Task{Title: "Waiting..."},
		Terminal:     []TerminalLine{},
		Thoughts:     []Thought{},
		Milestones:   []Milestone{},
		RecentErrors: []ErrorEntry{},
		Stats:        Stats{StartTime: now.UnixMilli()},
		Preview:      Preview{Domain: id + "." + previewDomain},
	}
}

// Clone returns a deep copy of the slices and pointers viewers or the cache
// may hold on to.
func (s State) Clone() State {
	c := s
	c.Terminal = append([]TerminalLine(nil), s.Terminal...)
	c.Thoughts = append([]Thought(nil), s.Thoughts...)
	c.Milestones = append([]Milestone(nil), s.Milestones...)
	c.RecentErrors = append([]ErrorEntry(nil), s.RecentErrors...)
	if s.Code != nil {
		code := *s.Code
		c.Code = &code
	}
	if s.Diff != nil {
		d := *s.Diff
		d.Hunks = append([]DiffHunk(nil), s.Diff.Hunks...)
		c.Diff = &d
	}
	if s.Goal != nil {
		g := *s.Goal
		c.Goal = &g
	}
	if s.Preview.URL != nil {
		u := *s.Preview.URL
		c.Preview.URL = &u
	}
	return c
}

func displayName(id string) string {
	r, size := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return id
	}
	return string(unicode.ToUpper(r)) + id[size:]
}

// isoTime formats t the way browsers print Date.toISOString.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var b strings.Builder
	i := 0
	for _, r := range s {
		if i == n {
			break
		}
		b.WriteRune(r)
		i++
	}
	return b.String()
}

func keepLast[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	out := make([]T, n)
	copy(out, s[len(s)-n:])
	return out
}
