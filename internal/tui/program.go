package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

// NewProgram creates the Bubble Tea program for the dashboard.
func NewProgram(backend Backend, events <-chan reporting.Event, logs <-chan logging.LogEntry) *tea.Program {
	return tea.NewProgram(NewModel(backend, events, logs), tea.WithAltScreen())
}
