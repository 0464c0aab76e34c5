// Package hook turns Claude Code hook invocations into relay payloads.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kulti/stream/pkg/kulti"
)

// Hook event names sent by Claude Code.
const (
	PreToolUse       = "PreToolUse"
	PostToolUse      = "PostToolUse"
	UserPromptSubmit = "UserPromptSubmit"
	Stop             = "Stop"
	SubagentStart    = "SubagentStart"
	SubagentStop     = "SubagentStop"
)

const maxPromptChars = 500

// Sender delivers a payload; *kulti.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, p *kulti.Payload) error
}

type input struct {
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  any             `json:"tool_response"`
	AgentName     string          `json:"agent_name"`
	SubagentType  string          `json:"subagent_type"`
	Message       any             `json:"message"`
	Prompt        any             `json:"prompt"`
	Content       any             `json:"content"`
}

// Translate builds the payload for one hook invocation. event falls back
// to hook_event_name in the body when empty. A nil payload means there is
// nothing to stream.
func Translate(event string, body []byte) (*kulti.Payload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var in input
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("decode hook input: %w", err)
	}
	if event == "" {
		event = in.HookEventName
	}

	switch event {
	case PreToolUse:
		return kulti.ClassifyBefore(kulti.ToolEvent{
			ToolName: in.ToolName,
			Phase:    kulti.PhaseBefore,
			Params:   toolParams(in.ToolInput),
		}), nil
	case PostToolUse:
		return kulti.ClassifyAfter(kulti.ToolEvent{
			ToolName: in.ToolName,
			Phase:    kulti.PhaseAfter,
			Params:   toolParams(in.ToolInput),
			Result:   in.ToolResponse,
		}), nil
	case UserPromptSubmit:
		return &kulti.Payload{
			Status: kulti.StatusWorking,
			Thought: &kulti.Thought{
				Type:    kulti.ThoughtPrompt,
				Content: "User: " + kulti.Truncate(in.message(), maxPromptChars),
			},
		}, nil
	case Stop:
		return &kulti.Payload{
			Status:  kulti.StatusThinking,
			Thought: &kulti.Thought{Type: kulti.ThoughtEvaluation, Content: "Turn complete"},
		}, nil
	case SubagentStart:
		return &kulti.Payload{Thought: &kulti.Thought{
			Type:     kulti.ThoughtReasoning,
			Content:  "Subagent started: " + in.subagent(),
			Metadata: map[string]any{"tool": "subagent"},
		}}, nil
	case SubagentStop:
		return &kulti.Payload{Thought: &kulti.Thought{
			Type:     kulti.ThoughtObservation,
			Content:  "Subagent finished: " + in.subagent(),
			Metadata: map[string]any{"tool": "subagent"},
		}}, nil
	}
	return nil, nil
}

// Run reads one hook invocation from r and sends it.
func Run(ctx context.Context, r io.Reader, event string, s Sender) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read hook input: %w", err)
	}
	p, err := Translate(event, body)
	if err != nil || p == nil {
		return err
	}
	return s.Send(ctx, p)
}

// toolParams accepts tool_input as an object or as a JSON-encoded string.
func toolParams(raw json.RawMessage) map[string]any {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err == nil && params != nil {
		return params
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &params); err == nil && params != nil {
			return params
		}
	}
	return map[string]any{}
}

func (in input) message() string {
	for _, v := range []any{in.Message, in.Prompt, in.Content} {
		switch val := v.(type) {
		case string:
			return val
		case map[string]any:
			if s, ok := val["content"].(string); ok {
				return s
			}
		}
	}
	return ""
}

func (in input) subagent() string {
	switch {
	case in.AgentName != "":
		return in.AgentName
	case in.SubagentType != "":
		return in.SubagentType
	}
	return "subagent"
}
