package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/client"
	"github.com/kulti/stream/internal/tui/theme"
	"github.com/kulti/stream/internal/tui/views/agents"
	"github.com/kulti/stream/internal/tui/views/chat"
	"github.com/kulti/stream/internal/tui/views/code"
	"github.com/kulti/stream/internal/tui/views/status"
	"github.com/kulti/stream/internal/tui/views/terminal"
	"github.com/kulti/stream/internal/tui/views/thoughts"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayAgents
)

type agentsMsg struct {
	list []client.AgentSummary
	err  error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws       *client.WSClient
	http     *client.HTTPClient
	ctx      context.Context
	cancel   context.CancelFunc
	username string

	keys   KeyMap
	width  int
	height int

	state client.AgentState

	statusBar status.Model
	thoughts  *thoughts.Model
	chat      chat.Model
	agents    agents.Model
	input     textinput.Model
	overlay   Overlay
	composing bool

	connected bool
}

// New creates the root model. username is sent with chat messages and may
// be empty.
func New(ws *client.WSClient, http *client.HTTPClient, username string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.CharLimit = 500
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		username:  username,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		thoughts:  thoughts.New(),
		chat:      chat.New(),
		agents:    agents.New(),
		input:     in,
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-10, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.statusBar.Agent = msg.Agent
		m.chat.Add(chat.KindSystem, "relay", "watching "+msg.Agent)
		return m, m.ws.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		return m, m.ws.Listen(m.ctx)

	case client.SnapshotMsg:
		m.state.ApplySnapshot(msg.Snapshot)
		m.syncStatus()
		return m, m.ws.ReadLoop(m.ctx)

	case client.UpdateMsg:
		m.state.ApplyUpdate(msg.Payload)
		m.syncStatus()
		return m, m.ws.ReadLoop(m.ctx)

	case client.ViewersMsg:
		m.state.Viewers = msg.Count
		m.syncStatus()
		return m, m.ws.ReadLoop(m.ctx)

	case client.ChatMsg:
		m.chat.Add(chat.KindChat, msg.Chat.Username, msg.Chat.Text)
		return m, m.ws.ReadLoop(m.ctx)

	case client.ReactionMsg:
		m.chat.Add(chat.KindReaction, msg.Reaction.From, msg.Reaction.Emoji)
		return m, m.ws.ReadLoop(m.ctx)

	case agentsMsg:
		if msg.err != nil {
			m.agents.Err = msg.err
			return m, nil
		}
		m.agents.SetAgents(msg.list, m.ws.Agent())
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.composing {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.composing = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			text := m.input.Value()
			m.composing = false
			m.input.Blur()
			m.input.Reset()
			if text != "" {
				if err := m.ws.SendChat(text, m.username); err != nil {
					m.chat.Add(chat.KindSystem, "relay", "chat not sent: "+err.Error())
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.overlay == OverlayAgents {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Down):
			m.agents.Next()
		case key.Matches(msg, m.keys.Up):
			m.agents.Prev()
		case key.Matches(msg, m.keys.Enter):
			m.overlay = OverlayNone
			if id := m.agents.Choice(); id != "" && id != m.ws.Agent() {
				m.state = client.AgentState{}
				m.syncStatus()
				m.ws.Switch(id)
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.ws.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Chat):
		m.composing = true
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Agents):
		m.overlay = OverlayAgents
		return m, m.fetchAgents()

	case key.Matches(msg, m.keys.React):
		if err := m.ws.SendReaction(Reactions[msg.String()]); err != nil {
			m.chat.Add(chat.KindSystem, "relay", "reaction not sent: "+err.Error())
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.chat.ScrollUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.chat.ScrollDown(1)
		return m, nil
	}

	return m, nil
}

func (m Model) fetchAgents() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		list, err := m.http.Agents(ctx)
		return agentsMsg{list: list, err: err}
	}
}

func (m *Model) syncStatus() {
	m.statusBar.Status = m.state.Status
	m.statusBar.Viewers = m.state.Viewers
	m.statusBar.Files = m.state.Files
	m.statusBar.Commands = m.state.Commands
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View(), m.renderHeadline()}

	if !m.connected {
		sections = append(sections, m.renderDisconnected())
	}

	if m.overlay == OverlayAgents {
		sections = append(sections, m.agents.View(m.width))
	} else {
		sections = append(sections, m.renderPanels())
	}

	if m.composing {
		sections = append(sections, " "+m.input.View())
	}
	sections = append(sections, theme.StyleDimmed.Render("  c:chat  1-5:react  a:agents  j/k:scroll  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeadline() string {
	task := m.state.Task.Title
	if task == "" {
		task = "Waiting..."
	}
	line := theme.StyleHeader.Render(" " + task)
	if m.state.Goal != nil && m.state.Goal.Title != "" {
		line += theme.StyleDimmed.Render("  goal: " + m.state.Goal.Title)
	}
	if m.state.Preview != "" {
		line += theme.StyleDimmed.Render("  preview: " + m.state.Preview)
	}
	if n := len(m.state.Errors); n > 0 {
		last := m.state.Errors[n-1].Message
		line += lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(fmt.Sprintf("  %d errors, last: %s", n, last))
	}
	return line
}

func (m Model) renderDisconnected() string {
	url := ""
	if m.ws != nil {
		url = m.ws.URL()
	}
	return lipgloss.NewStyle().
		Foreground(theme.ColorDanger).
		Bold(true).
		Padding(0, 1).
		Render("DISCONNECTED · Reconnecting to " + url)
}

// renderPanels lays out thoughts and code on top, terminal and chat below.
func (m Model) renderPanels() string {
	body := m.height - 6
	if m.composing {
		body--
	}
	if !m.connected {
		body--
	}
	top := max(body/2, 4)
	bottom := max(body-top, 4)

	left := m.width * 11 / 20
	right := m.width - left

	upper := lipgloss.JoinHorizontal(lipgloss.Top,
		m.thoughts.View(m.state.Thoughts, m.state.Thinking, left, top),
		code.View(m.state.Code, m.state.Diff, right, top),
	)
	lower := lipgloss.JoinHorizontal(lipgloss.Top,
		terminal.View(m.state.Terminal, left, bottom),
		m.chat.View(right, bottom),
	)
	return lipgloss.JoinVertical(lipgloss.Left, upper, lower)
}
