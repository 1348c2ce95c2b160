// Package tui is the terminal dashboard for toolhost.
//
// The dashboard lists every installed tool server with its live status on
// the left and the event stream of the selected server on the right. It is
// the primary detail surface: the caller routes each server's events to the
// channel the dashboard reads.
//
// # Keys
//
//   - ↑/k, ↓/j: select a server
//   - s: start the selected server
//   - x: stop the selected server
//   - r: restart the selected server
//   - y: copy the selected server's events to the clipboard
//   - L: toggle the activity log
//   - h/?: toggle help
//   - q/ctrl+c: quit
//
// # Usage
//
//	p := tui.NewProgram(reg, events.Events(), logChannel)
//	if _, err := p.Run(); err != nil {
//	    return err
//	}
package tui
