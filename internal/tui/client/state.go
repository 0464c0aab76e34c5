package client

import (
	"github.com/kulti/stream/pkg/kulti"
)

const (
	maxTerminal = 100
	maxThoughts = 100
)

// AgentState is the viewer's copy of the agent it watches, rebuilt from the
// snapshot and kept current by applying each raw update.
type AgentState struct {
	Name       string
	Status     string
	Task       kulti.Task
	Thinking   string
	Thoughts   []Thought
	Terminal   []kulti.TerminalLine
	Code       *kulti.Code
	Diff       *kulti.Diff
	Goal       *kulti.Goal
	Milestones []Milestone
	Errors     []ErrorEntry
	Preview    string
	Files      int
	Commands   int
	Viewers    int
}

func (s *AgentState) ApplySnapshot(snap Snapshot) {
	*s = AgentState{
		Name:       snap.Agent.Name,
		Status:     snap.Status,
		Task:       snap.Task,
		Thinking:   snap.Thinking,
		Thoughts:   snap.Thoughts,
		Terminal:   snap.Terminal,
		Code:       snap.Code,
		Diff:       snap.Diff,
		Goal:       snap.Goal,
		Milestones: snap.Milestones,
		Errors:     snap.RecentErrors,
		Files:      snap.Stats.Files,
		Commands:   snap.Stats.Commands,
		Viewers:    snap.Viewers,
	}
	if snap.Preview.URL != nil {
		s.Preview = *snap.Preview.URL
	}
}

// ApplyUpdate folds one raw ingest body into the state the same way the
// relay does for its own copy.
func (s *AgentState) ApplyUpdate(p *kulti.Payload) {
	if p.Status != "" {
		s.Status = p.Status
	}
	if p.Task != nil {
		s.Task = *p.Task
	}
	if p.Thinking != "" {
		s.Thinking = p.Thinking
	}
	if p.Thought != nil {
		s.Thoughts = append(s.Thoughts, Thought{
			Type:     string(p.Thought.Type),
			Content:  p.Thought.Content,
			Metadata: p.Thought.Metadata,
		})
		if len(s.Thoughts) > maxThoughts {
			s.Thoughts = s.Thoughts[len(s.Thoughts)-maxThoughts:]
		}
	}
	if len(p.Terminal) > 0 {
		if p.TerminalAppend != nil && !*p.TerminalAppend {
			s.Terminal = append([]kulti.TerminalLine(nil), p.Terminal...)
		} else {
			s.Terminal = append(s.Terminal, p.Terminal...)
		}
		if len(s.Terminal) > maxTerminal {
			s.Terminal = s.Terminal[len(s.Terminal)-maxTerminal:]
		}
	}
	if p.Code != nil {
		s.Code = p.Code
	}
	if p.Diff != nil {
		s.Diff = p.Diff
	}
	if p.Goal != nil {
		s.Goal = p.Goal
	}
	if p.Milestone != nil {
		s.Milestones = append(s.Milestones, Milestone{Label: p.Milestone.Label, Completed: p.Milestone.Completed})
	}
	if p.Error != nil {
		s.Errors = append(s.Errors, ErrorEntry{Message: p.Error.Message, File: p.Error.File})
	}
	if p.Preview != nil && p.Preview.URL != "" {
		s.Preview = p.Preview.URL
	}
	if p.Stats != nil {
		s.Files += p.Stats.Files
		s.Commands += p.Stats.Commands
	}
}
