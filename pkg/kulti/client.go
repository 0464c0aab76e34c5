// Package kulti is the producer SDK for the Kulti stream relay. Agents use a
// Client to push thoughts, terminal output, code and status to their watch
// page.
package kulti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultServer is the hosted relay.
	DefaultServer = "https://kulti-stream.fly.dev"

	defaultTimeout = 5 * time.Second
	hookPath       = "/hook"
)

// Config configures a Client. Only AgentID is required.
type Config struct {
	AgentID    string
	Server     string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("relay returned %d", e.Code)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Body)
}

// Client posts events for a single agent.
type Client struct {
	agentID string
	server  string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) *Client {
	server := strings.TrimRight(cfg.Server, "/")
	if server == "" {
		server = DefaultServer
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		agentID: cfg.AgentID,
		server:  server,
		apiKey:  cfg.APIKey,
		http:    hc,
	}
}

func (c *Client) AgentID() string { return c.agentID }

// WatchURL is the viewer page for this agent.
func (c *Client) WatchURL() string {
	return "https://kulti.club/ai/watch/" + c.agentID
}

// Send posts a raw payload. The agent id is filled in when empty.
func (c *Client) Send(ctx context.Context, p *Payload) error {
	if p.AgentID == "" {
		p.AgentID = c.agentID
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+hookPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Kulti-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", hookPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) thought(ctx context.Context, t ThoughtType, content string, meta map[string]any) error {
	return c.Send(ctx, &Payload{Thought: &Thought{Type: t, Content: content, Metadata: meta}})
}

// Think streams a general thought.
func (c *Client) Think(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtGeneral, text, nil)
}

func (c *Client) Reason(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtReasoning, text, nil)
}

func (c *Client) Decide(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtDecision, text, nil)
}

func (c *Client) Observe(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtObservation, text, nil)
}

// Evaluate streams a choice between options. chosen may be empty.
func (c *Client) Evaluate(ctx context.Context, text string, options []string, chosen string) error {
	meta := map[string]any{"options": options}
	if chosen != "" {
		meta["chosen"] = chosen
	}
	return c.thought(ctx, ThoughtEvaluation, text, meta)
}

// Context streams what the agent is reading. file may be empty.
func (c *Client) Context(ctx context.Context, text, file string) error {
	var meta map[string]any
	if file != "" {
		meta = map[string]any{"file": file}
	}
	return c.thought(ctx, ThoughtContext, text, meta)
}

func (c *Client) Tool(ctx context.Context, text, tool string) error {
	var meta map[string]any
	if tool != "" {
		meta = map[string]any{"tool": tool}
	}
	return c.thought(ctx, ThoughtTool, text, meta)
}

func (c *Client) Confused(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtConfusion, text, nil)
}

func (c *Client) Prompt(ctx context.Context, text string) error {
	return c.thought(ctx, ThoughtPrompt, text, nil)
}

// Code streams a file change. Deletes are shown as an emptied write.
func (c *Client) Code(ctx context.Context, filename, content string, action CodeAction) error {
	if action == "" || action == ActionDelete {
		action = ActionWrite
	}
	return c.Send(ctx, &Payload{
		Code: &Code{
			Filename: filename,
			Language: Language(filename),
			Content:  content,
			Action:   action,
		},
		Stats: &Stats{Files: 1},
	})
}

func (c *Client) Status(ctx context.Context, status string) error {
	return c.Send(ctx, &Payload{Status: status})
}

func (c *Client) Live(ctx context.Context) error {
	return c.Status(ctx, StatusLive)
}

func (c *Client) Task(ctx context.Context, title, description string) error {
	return c.Send(ctx, &Payload{
		Task:   &Task{Title: title, Description: description},
		Status: StatusWorking,
	})
}

func (c *Client) Preview(ctx context.Context, url string) error {
	return c.Send(ctx, &Payload{Preview: &Preview{URL: url}})
}

func (c *Client) Goal(ctx context.Context, title, description string) error {
	return c.Send(ctx, &Payload{Goal: &Goal{Title: title, Description: description}})
}

func (c *Client) Milestone(ctx context.Context, label string, completed bool) error {
	return c.Send(ctx, &Payload{Milestone: &Milestone{Label: label, Completed: completed}})
}

func (c *Client) Error(ctx context.Context, info ErrorInfo) error {
	return c.Send(ctx, &Payload{Error: &info})
}

// Terminal streams lines. With appendLines false the viewer's history is
// replaced.
func (c *Client) Terminal(ctx context.Context, lines []TerminalLine, appendLines bool) error {
	p := &Payload{Terminal: lines, Stats: &Stats{Commands: 1}}
	if !appendLines {
		p.TerminalAppend = boolPtr(false)
	}
	return c.Send(ctx, p)
}
