package mock

import (
	"testing"
	"time"

	"github.com/kulti/stream/internal/relay"
	"github.com/kulti/stream/internal/stream"
)

func newTestGenerator() (*Generator, *relay.Relay) {
	r := relay.New(stream.NewRegistry(stream.DefaultLimits()), relay.Options{})
	return NewGenerator(r, time.Hour), r
}

func TestGenerator_FirstTickStartsEveryAgent(t *testing.T) {
	g, r := newTestGenerator()
	g.Step()

	if got, want := r.Registry().Len(), len(g.AgentIDs()); got != want {
		t.Fatalf("registry has %d agents after first tick, want %d", got, want)
	}
	for _, id := range g.AgentIDs() {
		a, ok := r.Registry().Get(id)
		if !ok {
			t.Fatalf("agent %s missing", id)
		}
		st := a.State()
		if st.Status != stream.StatusStarting {
			t.Errorf("%s: status = %q, want starting", id, st.Status)
		}
		if st.Task.Title == "" || st.Goal == nil {
			t.Errorf("%s: task or goal not set: %+v", id, st.Task)
		}
	}
}

func TestGenerator_ProducesActivity(t *testing.T) {
	g, r := newTestGenerator()
	for i := 0; i < 30; i++ {
		g.Step()
	}

	a, _ := r.Registry().Get("mock-steady")
	st := a.State()
	if len(st.Thoughts) == 0 {
		t.Error("steady agent produced no thoughts")
	}
	if len(st.Terminal) == 0 {
		t.Error("steady agent produced no terminal output")
	}
	if st.Stats.Commands == 0 {
		t.Error("steady agent ran no commands")
	}
}

func TestGenerator_ErrorAgentFails(t *testing.T) {
	g, r := newTestGenerator()
	for i := 0; i < 45; i++ {
		g.Step()
	}

	a, _ := r.Registry().Get("mock-error")
	st := a.State()
	if st.Status != stream.StatusPaused {
		t.Errorf("status = %q, want paused", st.Status)
	}
	if len(st.RecentErrors) == 0 {
		t.Fatal("no error recorded")
	}
}

func TestGenerator_CompletesAndRestarts(t *testing.T) {
	g, r := newTestGenerator()
	for i := 0; i < 89; i++ {
		g.Step()
	}
	a, _ := r.Registry().Get("mock-burst")
	if got := a.State().Status; got != stream.StatusDone {
		t.Fatalf("status after lifetime = %q, want done", got)
	}
	if len(a.State().Milestones) == 0 {
		t.Error("completion milestone missing")
	}

	// Restart at tick 90, new run starts at tick 91.
	g.Step()
	g.Step()
	if got := a.State().Status; got != stream.StatusStarting {
		t.Fatalf("status after restart = %q, want starting", got)
	}
}
