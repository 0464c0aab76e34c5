// Package mock feeds synthetic agents through the normal ingest path so the
// relay and its viewers can be demoed without a real agent.
package mock

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/kulti/stream/internal/relay"
	"github.com/kulti/stream/internal/stream"
	"github.com/kulti/stream/pkg/kulti"
)

// Target is where generated updates go; *relay.Relay satisfies it.
type Target interface {
	Parse(body []byte) (*stream.Update, error)
	Apply(u *stream.Update, hook bool) relay.Result
}

type step struct {
	tool   string
	params map[string]any
	result any
}

type mockAgent struct {
	id      string
	task    string
	goal    string
	pattern string
	steps   []step
	// lifetime in ticks; the error pattern fails at failAt instead.
	lifetime int
	failAt   int

	stepIdx   int
	pending   *step
	completed bool
}

var (
	readMain = step{tool: "Read", params: map[string]any{"file_path": "/srv/app/main.go"}}
	grepTODO = step{tool: "Grep", params: map[string]any{"pattern": "TODO"}}
	editMain = step{tool: "Edit", params: map[string]any{
		"file_path":  "/srv/app/main.go",
		"old_string": "log.Println(err)",
		"new_string": "slog.Error(\"request failed\", \"error\", err)",
	}}
	writeTest = step{tool: "Write", params: map[string]any{
		"file_path": "/srv/app/main_test.go",
		"content":   "package main\n\nimport \"testing\"\n\nfunc TestServe(t *testing.T) {}\n",
	}}
	goTest = step{tool: "Bash", params: map[string]any{"command": "go test ./..."},
		result: "ok  \tapp\t0.412s"}
	goBuild = step{tool: "Bash", params: map[string]any{"command": "go build ./..."}, result: ""}
	failing = step{tool: "Bash", params: map[string]any{"command": "go test ./store"},
		result: "--- FAIL: TestMigrate\nError: relation \"events\" does not exist\nexit code 1"}
	fetchDocs = step{tool: "WebFetch", params: map[string]any{"url": "https://pkg.go.dev/net/http"}}
	delegate  = step{tool: "Task", params: map[string]any{"description": "Audit the error paths in the store package"}}
)

func defaultAgents() []*mockAgent {
	return []*mockAgent{
		{
			id: "mock-steady", task: "Refactor request logging",
			goal: "Structured logs everywhere", pattern: "steady", lifetime: 120,
			steps: []step{readMain, grepTODO, editMain, goBuild, goTest},
		},
		{
			id: "mock-burst", task: "Add handler tests",
			goal: "Cover every route", pattern: "burst", lifetime: 90,
			steps: []step{readMain, writeTest, goTest, writeTest, goTest},
		},
		{
			id: "mock-stall", task: "Investigate flaky build",
			goal: "Green CI", pattern: "stall", lifetime: 200,
			steps: []step{goBuild, readMain, fetchDocs, goTest},
		},
		{
			id: "mock-error", task: "Migrate the store",
			goal: "Schema v2", pattern: "error", lifetime: 200, failAt: 40,
			steps: []step{readMain, editMain, goBuild, failing},
		},
		{
			id: "mock-methodical", task: "Review the store package",
			goal: "Written review", pattern: "methodical", lifetime: 150,
			steps: []step{readMain, grepTODO, readMain, delegate, fetchDocs},
		},
	}
}

var musings = []string{
	"The handler swallows the error, so callers never see the failure.",
	"Two call sites build the same query; worth extracting.",
	"Tests pass locally but the race detector has not run yet.",
	"This branch is unreachable once the config is validated.",
}

type Generator struct {
	target   Target
	interval time.Duration
	agents   []*mockAgent
	rng      *rand.Rand
	tick     int
}

func NewGenerator(target Target, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Generator{
		target:   target,
		interval: interval,
		agents:   defaultAgents(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AgentIDs lists the synthetic agents.
func (g *Generator) AgentIDs() []string {
	ids := make([]string, len(g.agents))
	for i, a := range g.agents {
		ids[i] = a.id
	}
	return ids
}

// Run ticks until ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step advances every live agent by one tick. Agents restart after they
// finish so the demo never runs dry.
func (g *Generator) Step() {
	g.tick++
	for _, ma := range g.agents {
		for _, p := range g.advance(ma, g.tick) {
			g.send(ma.id, p)
		}
	}
}

func (g *Generator) send(agentID string, p *kulti.Payload) {
	p.AgentID = agentID
	body, err := json.Marshal(p)
	if err != nil {
		slog.Error("mock encode failed", "agent", agentID, "error", err)
		return
	}
	u, err := g.target.Parse(body)
	if err != nil {
		slog.Error("mock update rejected", "agent", agentID, "error", err)
		return
	}
	g.target.Apply(u, true)
}

func (g *Generator) advance(ma *mockAgent, tick int) []*kulti.Payload {
	if ma.completed {
		// Idle for a while, then start over.
		if tick%ma.lifetime == 0 {
			ma.completed = false
			ma.stepIdx = 0
			ma.pending = nil
		}
		return nil
	}

	age := tick % ma.lifetime
	if age == 1 || tick == 1 {
		return []*kulti.Payload{{
			Status: kulti.StatusStarting,
			Task:   &kulti.Task{Title: ma.task},
			Goal:   &kulti.Goal{Title: ma.goal},
		}}
	}

	if ma.pattern == "error" && age >= ma.failAt {
		ma.completed = true
		ev := kulti.ToolEvent{ToolName: failing.tool, Phase: kulti.PhaseAfter, Params: failing.params, Result: failing.result}
		out := []*kulti.Payload{kulti.ClassifyAfter(ev)}
		return append(out, &kulti.Payload{Status: kulti.StatusPaused, Thought: &kulti.Thought{
			Type: kulti.ThoughtConfusion, Content: "The migration fails and I do not know why yet.", Priority: kulti.PriorityHeadline,
		}})
	}

	if age == ma.lifetime-1 {
		ma.completed = true
		return []*kulti.Payload{{
			Status:    kulti.StatusDone,
			Milestone: &kulti.Milestone{Label: ma.goal, Completed: true},
		}}
	}

	if !g.active(ma, tick) {
		if ma.pattern == "stall" {
			return []*kulti.Payload{{Status: kulti.StatusPaused}}
		}
		return nil
	}

	if g.reflect(ma, tick) {
		return []*kulti.Payload{{Thought: &kulti.Thought{
			Type:     kulti.ThoughtReasoning,
			Content:  musings[g.rng.Intn(len(musings))],
			Priority: kulti.PriorityWorking,
		}}}
	}

	// A tool call spans two ticks: announce it, then report its result.
	if ma.pending != nil {
		s := ma.pending
		ma.pending = nil
		ev := kulti.ToolEvent{ToolName: s.tool, Phase: kulti.PhaseAfter, Params: s.params, Result: s.result}
		if p := kulti.ClassifyAfter(ev); p != nil {
			return []*kulti.Payload{p}
		}
		return nil
	}

	s := ma.steps[ma.stepIdx%len(ma.steps)]
	ma.stepIdx++
	ma.pending = &s
	return []*kulti.Payload{kulti.ClassifyBefore(kulti.ToolEvent{ToolName: s.tool, Phase: kulti.PhaseBefore, Params: s.params})}
}

// active reports whether the agent does anything this tick.
func (g *Generator) active(ma *mockAgent, tick int) bool {
	switch ma.pattern {
	case "burst":
		return tick%8 < 3 || g.rng.Intn(4) == 0
	case "stall":
		// Work for 40 ticks, then wait for 30.
		return tick%70 < 40
	case "methodical":
		pace := 0.7 + 0.3*math.Sin(float64(tick)/10.0)
		return g.rng.Float64() < pace
	}
	return true
}

func (g *Generator) reflect(ma *mockAgent, tick int) bool {
	if ma.pending != nil {
		return false
	}
	switch ma.pattern {
	case "methodical":
		return tick%5 == 0
	case "steady":
		return tick%7 == 0
	}
	return false
}
