package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const listWidth = 34

func (m *Model) layout() (detailWidth, bodyHeight int) {
	detailWidth = m.width - listWidth - 4
	if detailWidth < 20 {
		detailWidth = 20
	}
	bodyHeight = m.height - 4
	if m.showHelp {
		bodyHeight -= lipgloss.Height(m.help.View(m.keys))
	}
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	return detailWidth, bodyHeight
}

func (m *Model) resize() {
	w, h := m.layout()
	m.viewport.Width = w - panelStyle.GetHorizontalFrameSize()
	m.viewport.Height = h - panelStyle.GetVerticalFrameSize() - 1
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
}

// syncViewport loads the selected server's events, or the activity log,
// and keeps the view pinned to the newest line when it already was.
func (m *Model) syncViewport() {
	atBottom := m.viewport.AtBottom()
	width := m.viewport.Width

	var lines []string
	if m.showActivity {
		for _, l := range m.activity {
			lines = append(lines, truncateWidth(l, width))
		}
	} else {
		for _, ev := range m.details[m.SelectedID()] {
			lines = append(lines, styleEvent(ev, truncateWidth(FormatEvent(ev), width)))
		}
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	detailWidth, bodyHeight := m.layout()
	header := headerStyle.Width(m.width).Render(fmt.Sprintf("toolhost  •  %d servers", len(m.servers)))

	list := m.renderServerList(bodyHeight)
	detail := m.renderDetail(detailWidth, bodyHeight)
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)

	parts := []string{header, body, m.renderStatusBar()}
	if m.showHelp {
		parts = append(parts, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderServerList(height int) string {
	inner := listWidth - panelStyle.GetHorizontalFrameSize()
	rows := []string{panelTitleStyle.Render("Servers")}
	if len(m.servers) == 0 {
		rows = append(rows, eventMutedStyle.Render("none installed"))
	}
	for i, s := range m.servers {
		style, icon := statusStyle(s.Status)
		name := truncateWidth(s.ID, inner-12)
		pad := inner - 2 - runewidth.StringWidth(name) - len(s.Status)
		if pad < 1 {
			pad = 1
		}
		row := style.Render(icon) + " " + name + strings.Repeat(" ", pad) + style.Render(s.Status)
		if i == m.selected {
			row = selectedRowStyle.Render(icon + " " + name + strings.Repeat(" ", pad) + s.Status)
		}
		rows = append(rows, row)
	}

	if id := m.SelectedID(); id != "" {
		s := m.servers[m.selected]
		rows = append(rows, "")
		if s.PID > 0 {
			rows = append(rows, eventMutedStyle.Render(fmt.Sprintf("pid %d  pending %d", s.PID, s.Pending)))
		}
		if s.LastError != "" {
			rows = append(rows, statusErrorStyle.Render(truncateWidth(s.LastError, inner)))
		}
	}

	return panelStyle.
		Width(inner).
		Height(height - panelStyle.GetVerticalFrameSize()).
		Render(strings.Join(rows, "\n"))
}

func (m *Model) renderDetail(width, height int) string {
	title := "Events"
	if m.showActivity {
		title = "Activity log"
	} else if id := m.SelectedID(); id != "" {
		title = "Events  •  " + id
	}
	content := lipgloss.JoinVertical(lipgloss.Left, panelTitleStyle.Render(title), m.viewport.View())
	return focusedPanelStyle.
		Width(width - focusedPanelStyle.GetHorizontalFrameSize()).
		Height(height - focusedPanelStyle.GetVerticalFrameSize()).
		Render(content)
}

func (m *Model) renderStatusBar() string {
	style := statusBarStyle
	switch m.statusType {
	case StatusBarError:
		style = statusBarErrorStyle
	case StatusBarSuccess:
		style = statusBarSuccessStyle
	}
	if m.statusMessage == "" {
		return statusBarStyle.Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return style.Width(m.width).Render(truncateWidth(m.statusMessage, m.width-2))
}
