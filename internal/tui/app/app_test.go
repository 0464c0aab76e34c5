package app

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kulti/stream/internal/tui/client"
	"github.com/kulti/stream/pkg/kulti"
)

func newTestModel() Model {
	ws := client.NewWSClient("ws://127.0.0.1:1/", "nex", "tester")
	m := New(ws, client.NewHTTPClient("http://127.0.0.1:1"), "tester")
	m.width = 120
	m.height = 40
	m.statusBar.Width = 120
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestDisconnectOverlay(t *testing.T) {
	m := newTestModel()
	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect banner should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect banner should contain 'Reconnecting'")
	}
}

func TestSnapshotAndUpdates(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.ConnectedMsg{Agent: "nex"})
	if !m.connected || !m.statusBar.Connected {
		t.Fatal("connected message not applied")
	}

	m = update(t, m, client.SnapshotMsg{Snapshot: client.Snapshot{
		Agent:   client.Profile{Name: "Nex"},
		Status:  "live",
		Task:    kulti.Task{Title: "Fix login"},
		Viewers: 2,
	}})
	m = update(t, m, client.UpdateMsg{Payload: &kulti.Payload{
		Status:  kulti.StatusWorking,
		Thought: &kulti.Thought{Type: kulti.ThoughtDecision, Content: "ship"},
		Stats:   &kulti.Stats{Commands: 1},
	}})
	m = update(t, m, client.ViewersMsg{Count: 3})

	if m.statusBar.Status != "working" || m.statusBar.Viewers != 3 || m.statusBar.Commands != 1 {
		t.Errorf("status bar not synced: %+v", m.statusBar)
	}
	if len(m.state.Thoughts) != 1 {
		t.Errorf("thoughts = %d, want 1", len(m.state.Thoughts))
	}

	v := m.View()
	if strings.Contains(v, "DISCONNECTED") {
		t.Error("connected view should not show the disconnect banner")
	}
	if !strings.Contains(v, "Fix login") {
		t.Error("task title missing from view")
	}
}

func TestChatAndReactionsAreLogged(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.ChatMsg{Chat: client.Chat{Username: "sam", Text: "hi"}})
	m = update(t, m, client.ReactionMsg{Reaction: client.Reaction{Emoji: "🔥", From: "viewer-1"}})
	if len(m.chat.Entries) != 2 {
		t.Fatalf("chat entries = %d, want 2", len(m.chat.Entries))
	}
}

func TestReactionWhileDisconnectedIsReported(t *testing.T) {
	m := newTestModel()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	if len(m.chat.Entries) != 1 || !strings.Contains(m.chat.Entries[0].Text, "not connected") {
		t.Errorf("expected a not-connected notice, got %+v", m.chat.Entries)
	}
}

func TestComposeAndCancel(t *testing.T) {
	m := newTestModel()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if !m.composing {
		t.Fatal("c should start composing")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.composing || m.input.Value() != "q" {
		t.Fatalf("typing should go to the input, got %q", m.input.Value())
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.composing || m.input.Value() != "" {
		t.Error("esc should cancel and clear the input")
	}
}

func TestAgentsOverlaySwitches(t *testing.T) {
	m := newTestModel()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if m.overlay != OverlayAgents {
		t.Fatal("a should open the agents overlay")
	}
	m = update(t, m, agentsMsg{list: []client.AgentSummary{{AgentID: "nex"}, {AgentID: "mock-steady", ViewerCount: 2}}})
	if m.agents.Choice() != "nex" {
		t.Fatalf("current agent should be selected, got %q", m.agents.Choice())
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.overlay != OverlayNone {
		t.Error("enter should close the overlay")
	}
	if m.ws.Agent() != "mock-steady" {
		t.Errorf("watching %q, want mock-steady", m.ws.Agent())
	}
}
