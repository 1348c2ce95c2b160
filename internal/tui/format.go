package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"toolhost/internal/reporting"
)

// FormatEvent renders one event as a single line without styling.
func FormatEvent(ev reporting.Event) string {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case reporting.EventTypeLog:
		return fmt.Sprintf("%s %s %s", ts, ev.Stream, ev.Line)
	case reporting.EventTypeStatus:
		line := fmt.Sprintf("%s status %s", ts, ev.Status)
		if ev.ExitCode != nil {
			line += fmt.Sprintf(" (exit %d)", *ev.ExitCode)
		}
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		return line
	case reporting.EventTypeInitialized:
		return fmt.Sprintf("%s initialized %s", ts, compact(string(ev.ServerInfo)))
	case reporting.EventTypeMessage:
		if ev.Message == nil {
			return ts + " message"
		}
		m := ev.Message
		arrow := "←"
		if m.Direction == reporting.DirectionOutgoing {
			arrow = "→"
		}
		parts := []string{ts, arrow, string(m.Kind)}
		if m.ID != "" && m.Kind != reporting.MessageNotification {
			parts = append(parts, "#"+m.ID)
		}
		if m.Method != "" {
			parts = append(parts, m.Method)
		}
		if m.LatencyMS > 0 {
			parts = append(parts, fmt.Sprintf("%dms", m.LatencyMS))
		}
		if len(m.Payload) > 0 {
			parts = append(parts, compact(string(m.Payload)))
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s %s", ts, ev.Type)
}

func styleEvent(ev reporting.Event, line string) string {
	switch ev.Type {
	case reporting.EventTypeLog:
		if ev.Stream == reporting.StreamStderr {
			return eventStderrStyle.Render(line)
		}
		return eventMutedStyle.Render(line)
	case reporting.EventTypeStatus:
		style, _ := statusStyle(ev.Status)
		return style.Render(line)
	case reporting.EventTypeMessage:
		if ev.Message == nil {
			return line
		}
		if ev.Message.Kind == reporting.MessageError {
			return eventErrorStyle.Render(line)
		}
		if ev.Message.Direction == reporting.DirectionOutgoing {
			return eventOutStyle.Render(line)
		}
		return eventInStyle.Render(line)
	}
	return line
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateWidth cuts s to fit maxWidth terminal cells.
func truncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 || runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth-1, "") + "…"
}
