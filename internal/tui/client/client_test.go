package client

import (
	"testing"

	"github.com/kulti/stream/pkg/kulti"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"snapshot", `{"agent":{"name":"Nex"},"status":"live","terminal":[],"thoughts":[],"viewers":2}`, "snapshot"},
		{"join", `{"type":"viewer_join","viewer":{"id":"a"},"viewers":3}`, "viewers"},
		{"leave", `{"type":"viewer_leave","viewerId":"a","viewers":1}`, "viewers"},
		{"reaction", `{"type":"reaction","emoji":"🔥","from":"viewer-ab12"}`, "reaction"},
		{"chat", `{"chat":{"type":"viewer","username":"sam","text":"hi","time":"just now"}}`, "chat"},
		{"update", `{"agent_id":"nex","thought":{"type":"reasoning","content":"why"}}`, "update"},
		{"empty update", `{"agent_id":"nex"}`, ""},
		{"garbage", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			switch Decode([]byte(tt.data)).(type) {
			case SnapshotMsg:
				got = "snapshot"
			case ViewersMsg:
				got = "viewers"
			case ReactionMsg:
				got = "reaction"
			case ChatMsg:
				got = "chat"
			case UpdateMsg:
				got = "update"
			}
			if got != tt.want {
				t.Errorf("Decode(%s) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestDecodeViewerCount(t *testing.T) {
	msg, ok := Decode([]byte(`{"type":"viewer_join","viewers":7}`)).(ViewersMsg)
	if !ok || msg.Count != 7 {
		t.Fatalf("got %#v, want ViewersMsg{7}", msg)
	}
}

func TestApplySnapshotThenUpdates(t *testing.T) {
	var s AgentState
	snap, _ := Decode([]byte(`{"agent":{"name":"Nex"},"status":"live","task":{"title":"Fix login"},
		"terminal":[{"type":"input","content":"$ ls"}],"thoughts":[{"type":"general","content":"hi"}],
		"preview":{"url":"https://x.dev"},"stats":{"files":2,"commands":3},"viewers":4}`)).(SnapshotMsg)
	s.ApplySnapshot(snap.Snapshot)

	if s.Name != "Nex" || s.Status != "live" || s.Viewers != 4 || s.Preview != "https://x.dev" {
		t.Fatalf("snapshot not applied: %+v", s)
	}

	no := false
	s.ApplyUpdate(&kulti.Payload{
		Status:   kulti.StatusWorking,
		Thought:  &kulti.Thought{Type: kulti.ThoughtDecision, Content: "use OAuth"},
		Terminal: []kulti.TerminalLine{{Type: "output", Content: "ok"}},
		Stats:    &kulti.Stats{Files: 1},
	})
	if s.Status != "working" || len(s.Thoughts) != 2 || len(s.Terminal) != 2 || s.Files != 3 {
		t.Fatalf("update not applied: %+v", s)
	}

	s.ApplyUpdate(&kulti.Payload{Terminal: []kulti.TerminalLine{{Type: "input", Content: "$ clear"}}, TerminalAppend: &no})
	if len(s.Terminal) != 1 || s.Terminal[0].Content != "$ clear" {
		t.Errorf("terminal not replaced: %+v", s.Terminal)
	}
}

func TestApplyUpdateCapsHistory(t *testing.T) {
	var s AgentState
	for i := 0; i < maxThoughts+10; i++ {
		s.ApplyUpdate(&kulti.Payload{
			Thought:  &kulti.Thought{Type: kulti.ThoughtGeneral, Content: "x"},
			Terminal: []kulti.TerminalLine{{Type: "output", Content: "y"}},
		})
	}
	if len(s.Thoughts) != maxThoughts {
		t.Errorf("thoughts = %d, want %d", len(s.Thoughts), maxThoughts)
	}
	if len(s.Terminal) != maxTerminal {
		t.Errorf("terminal = %d, want %d", len(s.Terminal), maxTerminal)
	}
}

func TestURL(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:8080/", "nex", "sam")
	if got, want := c.URL(), "ws://127.0.0.1:8080/?agent=nex&name=sam"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	c.Switch("mock-steady")
	if c.Agent() != "mock-steady" {
		t.Errorf("Agent() = %q after switch", c.Agent())
	}
}
