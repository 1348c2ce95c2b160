package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mark3labs/mcp-go/mcp"

	"toolhost/internal/registry"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

const (
	maxEventLines    = 1000
	maxActivityLines = 500
	actionTimeout    = 30 * time.Second
	refreshInterval  = 2 * time.Second
)

// For mocking in tests
var tickAfter = tea.Tick

// Backend is the part of the registry the dashboard drives.
type Backend interface {
	List() ([]registry.ServerStatus, error)
	Start(ctx context.Context, id string) (*mcp.InitializeResult, error)
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) (*mcp.InitializeResult, error)
}

// MessageType selects the status bar style.
type MessageType int

const (
	StatusBarInfo MessageType = iota
	StatusBarSuccess
	StatusBarError
)

type (
	serversMsg struct {
		servers []registry.ServerStatus
		err     error
	}
	eventMsg    reporting.Event
	logEntryMsg logging.LogEntry
	actionMsg   struct {
		action string
		id     string
		err    error
	}
	clearStatusMsg struct{ seq int }
	tickMsg        time.Time
)

// Model is the dashboard state.
type Model struct {
	backend Backend
	events  <-chan reporting.Event
	logs    <-chan logging.LogEntry

	keys     KeyMap
	help     help.Model
	viewport viewport.Model

	servers  []registry.ServerStatus
	selected int

	details  map[string][]reporting.Event
	activity []string

	width, height int
	showHelp      bool
	showActivity  bool

	statusMessage string
	statusType    MessageType
	statusSeq     int

	copy func(string) error
}

// NewModel creates the dashboard model. events carries every server's
// events; logs may be nil.
func NewModel(backend Backend, events <-chan reporting.Event, logs <-chan logging.LogEntry) *Model {
	return &Model{
		backend:  backend,
		events:   events,
		logs:     logs,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(80, 20),
		details:  make(map[string][]reporting.Event),
		copy:     clipboard.WriteAll,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.listenForEvents(), m.listenForLogs(), tick())
}

func tick() tea.Cmd {
	return tickAfter(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		servers, err := m.backend.List()
		return serversMsg{servers: servers, err: err}
	}
}

func (m *Model) listenForEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) listenForLogs() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-m.logs
		if !ok {
			return nil
		}
		return logEntryMsg(entry)
	}
}

// SelectedID returns the id of the highlighted server, or "".
func (m *Model) SelectedID() string {
	if m.selected < 0 || m.selected >= len(m.servers) {
		return ""
	}
	return m.servers[m.selected].ID
}

// SetStatusMessage shows msg in the status bar and clears it after clearAfter.
func (m *Model) SetStatusMessage(msg string, msgType MessageType, clearAfter time.Duration) tea.Cmd {
	m.statusSeq++
	m.statusMessage = msg
	m.statusType = msgType
	seq := m.statusSeq
	return tickAfter(clearAfter, func(time.Time) tea.Msg { return clearStatusMsg{seq: seq} })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case serversMsg:
		if msg.err != nil {
			return m, m.SetStatusMessage("Failed to list servers: "+msg.err.Error(), StatusBarError, 5*time.Second)
		}
		prev := m.SelectedID()
		m.servers = msg.servers
		m.selected = 0
		for i, s := range m.servers {
			if s.ID == prev {
				m.selected = i
			}
		}
		m.syncViewport()
		return m, nil

	case eventMsg:
		ev := reporting.Event(msg)
		lines := append(m.details[ev.ServerID], ev)
		if len(lines) > maxEventLines {
			lines = lines[len(lines)-maxEventLines:]
		}
		m.details[ev.ServerID] = lines
		if ev.ServerID == m.SelectedID() {
			m.syncViewport()
		}
		cmds := []tea.Cmd{m.listenForEvents()}
		if ev.Type == reporting.EventTypeStatus {
			cmds = append(cmds, m.refresh())
		}
		return m, tea.Batch(cmds...)

	case logEntryMsg:
		line := fmt.Sprintf("[%s] %s %s: %s", msg.Timestamp.Format("15:04:05"), msg.Level, msg.Subsystem, msg.Message)
		if msg.Err != nil {
			line += ": " + msg.Err.Error()
		}
		m.activity = append(m.activity, line)
		if len(m.activity) > maxActivityLines {
			m.activity = m.activity[len(m.activity)-maxActivityLines:]
		}
		if m.showActivity {
			m.syncViewport()
		}
		return m, m.listenForLogs()

	case actionMsg:
		if msg.err != nil {
			return m, tea.Batch(m.refresh(), m.SetStatusMessage(fmt.Sprintf("%s %s failed: %v", msg.action, msg.id, msg.err), StatusBarError, 5*time.Second))
		}
		return m, tea.Batch(m.refresh(), m.SetStatusMessage(fmt.Sprintf("%s %s: ok", msg.action, msg.id), StatusBarSuccess, 3*time.Second))

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.statusMessage = ""
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.resize()
		return m, nil

	case key.Matches(msg, m.keys.ToggleLog):
		m.showActivity = !m.showActivity
		m.syncViewport()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			m.syncViewport()
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.servers)-1 {
			m.selected++
			m.syncViewport()
		}
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m, m.action("start", func(ctx context.Context, id string) error {
			_, err := m.backend.Start(ctx, id)
			return err
		})

	case key.Matches(msg, m.keys.Stop):
		return m, m.action("stop", m.backend.Stop)

	case key.Matches(msg, m.keys.Restart):
		return m, m.action("restart", func(ctx context.Context, id string) error {
			_, err := m.backend.Restart(ctx, id)
			return err
		})

	case key.Matches(msg, m.keys.CopyLogs):
		return m, m.copyDetails()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) action(name string, fn func(ctx context.Context, id string) error) tea.Cmd {
	id := m.SelectedID()
	if id == "" {
		return nil
	}
	status := m.SetStatusMessage(fmt.Sprintf("%s %s...", name, id), StatusBarInfo, actionTimeout)
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{action: name, id: id, err: fn(ctx, id)}
	}
	return tea.Batch(status, run)
}

func (m *Model) copyDetails() tea.Cmd {
	var text string
	if m.showActivity {
		text = strings.Join(m.activity, "\n")
	} else {
		id := m.SelectedID()
		if id == "" {
			return nil
		}
		lines := make([]string, 0, len(m.details[id]))
		for _, ev := range m.details[id] {
			lines = append(lines, FormatEvent(ev))
		}
		text = strings.Join(lines, "\n")
	}
	if err := m.copy(text); err != nil {
		logging.Error("TUI", err, "Failed to copy to clipboard")
		return m.SetStatusMessage("Copy failed", StatusBarError, 3*time.Second)
	}
	return m.SetStatusMessage("Copied to clipboard", StatusBarSuccess, 3*time.Second)
}
