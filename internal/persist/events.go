package persist

import (
	"time"

	"github.com/kulti/stream/internal/stream"
)

// Event types written to ai_stream_events.
const (
	EventThought     = "thought"
	EventThinking    = "thinking"
	EventDiff        = "diff"
	EventGoal        = "goal"
	EventMilestone   = "milestone"
	EventError       = "error"
	EventCode        = "code"
	EventTerminal    = "terminal"
	EventArtStart    = "art_start"
	EventArtComplete = "art_complete"
)

// Event is one row of the event log.
type Event struct {
	Type string
	Data map[string]any
}

// IngestRecord is everything needed to persist one ingest.
type IngestRecord struct {
	Session stream.SessionInfo
	Update  *stream.Update
	At      time.Time
}

// ChatRecord is a viewer chat message.
type ChatRecord struct {
	AgentID    string
	SenderID   string
	SenderName string
	Message    string
	At         time.Time
}

// SessionStatus is the status stored for an agent session. Busy states are
// shown as live in listings.
func SessionStatus(status string) string {
	if status == stream.StatusWorking || status == stream.StatusThinking {
		return stream.StatusLive
	}
	return status
}

// BuildEvents lists the event rows for u. A completed art event is not
// included because it references the gallery row; see ArtCompletion.
func BuildEvents(u *stream.Update) []Event {
	var events []Event

	if t := u.Thought; t != nil {
		typ := t.Type
		if typ == "" {
			typ = "general"
		}
		meta := t.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		data := map[string]any{
			"thoughtType": typ,
			"content":     t.Content,
			"metadata":    meta,
		}
		if t.Priority != "" {
			data["priority"] = t.Priority
		}
		events = append(events, Event{Type: EventThought, Data: data})
	}

	if d := u.Diff; d != nil {
		events = append(events, Event{Type: EventDiff, Data: map[string]any{
			"filename": d.Filename,
			"language": d.Language,
			"hunks":    d.Hunks,
		}})
	}

	if g := u.Goal; g != nil {
		data := map[string]any{"title": g.Title}
		if g.Description != "" {
			data["description"] = g.Description
		}
		events = append(events, Event{Type: EventGoal, Data: data})
	}

	if m := u.Milestone; m != nil {
		events = append(events, Event{Type: EventMilestone, Data: map[string]any{
			"label":     m.Label,
			"completed": m.Completed,
		}})
	}

	if e := u.Error; e != nil {
		data := map[string]any{"message": e.Message}
		if e.File != "" {
			data["file"] = e.File
		}
		if e.Line != nil {
			data["line"] = *e.Line
		}
		if e.Stack != "" {
			data["stack"] = e.Stack
		}
		if e.RecoveryStrategy != "" {
			data["recovery_strategy"] = e.RecoveryStrategy
		}
		events = append(events, Event{Type: EventError, Data: data})
	}

	if u.Thought == nil && u.Thinking != nil && *u.Thinking != "" {
		events = append(events, Event{Type: EventThinking, Data: map[string]any{"content": *u.Thinking}})
	}

	for _, c := range u.Code {
		events = append(events, Event{Type: EventCode, Data: map[string]any{
			"filename": orDefault(c.Filename, "unknown"),
			"language": orDefault(c.Language, "plaintext"),
			"content":  c.Content,
			"action":   orDefault(c.Action, "write"),
		}})
	}

	for _, l := range u.Terminal {
		data := map[string]any{"type": orDefault(l.Type, "info"), "content": l.Content}
		if l.Timestamp != "" {
			data["timestamp"] = l.Timestamp
		}
		events = append(events, Event{Type: EventTerminal, Data: data})
	}

	if a := u.Art; a != nil && a.Status == "generating" {
		events = append(events, Event{Type: EventArtStart, Data: map[string]any{
			"prompt": a.Prompt,
			"model":  a.Model,
		}})
	}

	return events
}

// ArtCompletion returns the finished artwork in u, if any.
func ArtCompletion(u *stream.Update) *stream.Art {
	if a := u.Art; a != nil && a.Status == "complete" && a.ImageURL != "" {
		return a
	}
	return nil
}

// ArtCompleteEvent is the event row recorded after the gallery insert. artID
// is empty when the gallery insert failed.
func ArtCompleteEvent(a *stream.Art, artID string) Event {
	data := map[string]any{
		"image_url": a.ImageURL,
		"prompt":    a.Prompt,
		"model":     a.Model,
	}
	if artID != "" {
		data["art_id"] = artID
	}
	return Event{Type: EventArtComplete, Data: data}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
