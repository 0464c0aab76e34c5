package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPayload is returned for bodies that are not a JSON object.
var ErrInvalidPayload = errors.New("invalid payload")

type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type ThoughtInput struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

type MilestoneInput struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

type ErrorInput struct {
	Message          string `json:"message"`
	File             string `json:"file"`
	Line             *int   `json:"line"`
	Stack            string `json:"stack"`
	RecoveryStrategy string `json:"recovery_strategy"`
}

type PreviewPatch struct {
	URL    *string `json:"url"`
	Domain *string `json:"domain"`
}

type StatsPatch struct {
	Files    *int `json:"files"`
	Commands *int `json:"commands"`
}

// Art is an image generation event. It is persisted, never kept in state.
type Art struct {
	Status   string         `json:"status"`
	Prompt   string         `json:"prompt"`
	Model    string         `json:"model"`
	ImageURL string         `json:"image_url"`
	Metadata map[string]any `json:"metadata"`
}

// Update is a parsed ingest body. Absent fields are nil. Raw holds the body
// exactly as received and is what viewers get.
type Update struct {
	AgentID        string
	Status         string
	Task           *TaskPatch
	Terminal       []TerminalLine
	HasTerminal    bool
	TerminalAppend *bool
	Thinking       *string
	Thought        *ThoughtInput
	Code           []Code
	Diff           *Diff
	Goal           *Goal
	Milestone      *MilestoneInput
	Error          *ErrorInput
	Preview        *PreviewPatch
	Stats          *StatsPatch
	Art            *Art

	Raw []byte
}

// ParseUpdate decodes an ingest body. Only a body that is not a JSON object
// is an error; individual fields of the wrong shape are dropped.
func ParseUpdate(body []byte) (*Update, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body is null", ErrInvalidPayload)
	}

	u := &Update{Raw: body}

	if id, ok := str(fields["agentId"]); ok {
		u.AgentID = id
	} else if id, ok := str(fields["agent_id"]); ok {
		u.AgentID = id
	}
	u.Status, _ = str(fields["status"])

	if raw := fields["task"]; isObject(raw) {
		u.Task = &TaskPatch{}
		lenient(raw, u.Task)
	}

	if raw, ok := fields["terminal"]; ok && !isNull(raw) {
		u.Terminal, u.HasTerminal = parseTerminal(raw)
	}
	for _, key := range []string{"terminalAppend", "terminal_append"} {
		var b bool
		if raw := fields[key]; !isNull(raw) && json.Unmarshal(raw, &b) == nil {
			u.TerminalAppend = &b
			break
		}
	}

	if s, ok := str(fields["thinking"]); ok {
		u.Thinking = &s
	}

	if raw := fields["thought"]; isObject(raw) {
		u.Thought = &ThoughtInput{}
		lenient(raw, u.Thought)
	} else if s, ok := str(raw); ok {
		u.Thought = &ThoughtInput{Content: s}
	}

	if raw, ok := fields["code"]; ok && !isNull(raw) {
		u.Code = parseCode(raw)
	}

	if raw := fields["diff"]; isObject(raw) {
		u.Diff = &Diff{}
		lenient(raw, u.Diff)
	}
	if raw := fields["goal"]; isObject(raw) {
		u.Goal = &Goal{}
		lenient(raw, u.Goal)
	}
	if raw := fields["milestone"]; isObject(raw) {
		u.Milestone = &MilestoneInput{}
		lenient(raw, u.Milestone)
	}
	if raw := fields["error"]; isObject(raw) {
		u.Error = &ErrorInput{}
		lenient(raw, u.Error)
	}
	if raw := fields["preview"]; isObject(raw) {
		u.Preview = &PreviewPatch{}
		lenient(raw, u.Preview)
	}
	if raw := fields["stats"]; isObject(raw) {
		u.Stats = &StatsPatch{}
		lenient(raw, u.Stats)
	}
	if raw := fields["art"]; isObject(raw) {
		u.Art = &Art{}
		lenient(raw, u.Art)
	}

	return u, nil
}

// Thoughtful reports whether the update carries a thought or a non-empty
// thinking string.
func (u *Update) Thoughtful() bool {
	return u.Thought != nil || (u.Thinking != nil && *u.Thinking != "")
}

func parseTerminal(raw json.RawMessage) ([]TerminalLine, bool) {
	var entries []json.RawMessage
	switch {
	case isArray(raw):
		if json.Unmarshal(raw, &entries) != nil {
			return nil, false
		}
	case isObject(raw):
		entries = []json.RawMessage{raw}
	default:
		return nil, false
	}

	lines := make([]TerminalLine, 0, len(entries))
	for _, e := range entries {
		var fields map[string]json.RawMessage
		if !isObject(e) || json.Unmarshal(e, &fields) != nil {
			continue
		}
		line := TerminalLine{}
		line.Type, _ = str(fields["type"])
		line.Timestamp, _ = str(fields["timestamp"])
		if c, ok := fields["content"]; ok && !isNull(c) {
			if s, ok := str(c); ok {
				line.Content = s
			} else {
				line.Content = string(c)
			}
		}
		lines = append(lines, line)
	}
	return lines, true
}

func parseCode(raw json.RawMessage) []Code {
	var entries []json.RawMessage
	switch {
	case isArray(raw):
		if json.Unmarshal(raw, &entries) != nil {
			return nil
		}
	case isObject(raw):
		entries = []json.RawMessage{raw}
	default:
		return nil
	}

	codes := make([]Code, 0, len(entries))
	for _, e := range entries {
		if !isObject(e) {
			continue
		}
		var c Code
		lenient(e, &c)
		codes = append(codes, c)
	}
	return codes
}

func str(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// lenient decodes raw into v, keeping whatever fields had the right type.
func lenient(raw json.RawMessage, v any) {
	_ = json.Unmarshal(raw, v)
}

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func isObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }
func isArray(raw json.RawMessage) bool  { return firstByte(raw) == '[' }
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// apply folds u into s. hook selects incremental stats.
func (s *State) apply(u *Update, hook bool, lim Limits, now time.Time, newID func() string) {
	ts := isoTime(now)

	if u.Task != nil {
		if u.Task.Title != nil {
			s.Task.Title = *u.Task.Title
		}
		if u.Task.Description != nil {
			s.Task.Description = *u.Task.Description
		}
	}

	if u.Status != "" {
		s.Status = u.Status
	}

	if u.HasTerminal {
		stamped := make([]TerminalLine, len(u.Terminal))
		for i, l := range u.Terminal {
			if l.Type == "" {
				l.Type = "info"
			}
			if l.Timestamp == "" {
				l.Timestamp = ts
			}
			stamped[i] = l
		}
		if u.TerminalAppend != nil && !*u.TerminalAppend {
			s.Terminal = stamped
		} else {
			s.Terminal = append(s.Terminal, stamped...)
		}
		s.Terminal = keepLast(s.Terminal, lim.Terminal)
		if hook && u.Stats == nil {
			s.Stats.Commands++
		}
	}

	if u.Thinking != nil {
		s.Thinking = *u.Thinking
	}

	if u.Thought != nil {
		meta := make(map[string]any, len(u.Thought.Metadata)+1)
		for k, v := range u.Thought.Metadata {
			meta[k] = v
		}
		if u.Thought.Priority != "" {
			meta["priority"] = u.Thought.Priority
		}
		typ := u.Thought.Type
		if typ == "" {
			typ = "general"
		}
		s.Thoughts = append(s.Thoughts, Thought{
			ID:        newID(),
			Type:      typ,
			Content:   u.Thought.Content,
			Timestamp: ts,
			Metadata:  meta,
		})
		s.Thoughts = keepLast(s.Thoughts, lim.Thoughts)
		s.Thinking = u.Thought.Content
	}

	if len(u.Code) > 0 {
		latest := u.Code[len(u.Code)-1]
		latest.Timestamp = ts
		s.Code = &latest
		if hook && u.Stats == nil {
			s.Stats.Files += len(u.Code)
		}
	}

	if u.Preview != nil {
		if u.Preview.URL != nil {
			url := *u.Preview.URL
			s.Preview.URL = &url
		}
		if u.Preview.Domain != nil {
			s.Preview.Domain = *u.Preview.Domain
		}
	}

	if u.Stats != nil {
		if hook {
			if u.Stats.Files != nil {
				s.Stats.Files += *u.Stats.Files
			}
			if u.Stats.Commands != nil {
				s.Stats.Commands += *u.Stats.Commands
			}
		} else {
			if u.Stats.Files != nil {
				s.Stats.Files = *u.Stats.Files
			}
			if u.Stats.Commands != nil {
				s.Stats.Commands = *u.Stats.Commands
			}
		}
	}

	if u.Diff != nil {
		d := *u.Diff
		s.Diff = &d
	}

	if u.Goal != nil {
		g := *u.Goal
		s.Goal = &g
	}

	if u.Milestone != nil {
		s.Milestones = append(s.Milestones, Milestone{
			Label:     u.Milestone.Label,
			Completed: u.Milestone.Completed,
			Timestamp: ts,
		})
		s.Milestones = keepLast(s.Milestones, lim.Milestones)
	}

	if u.Error != nil {
		s.RecentErrors = append(s.RecentErrors, ErrorEntry{
			Message:          u.Error.Message,
			File:             u.Error.File,
			Line:             u.Error.Line,
			Stack:            u.Error.Stack,
			RecoveryStrategy: u.Error.RecoveryStrategy,
			Timestamp:        ts,
		})
		s.RecentErrors = keepLast(s.RecentErrors, lim.Errors)
	}

	if u.Status == "" {
		switch {
		case u.Thoughtful():
			s.Status = StatusThinking
		case u.HasTerminal || len(u.Code) > 0:
			s.Status = StatusWorking
		}
	}

	s.LastUpdate = now.UnixMilli()
}
