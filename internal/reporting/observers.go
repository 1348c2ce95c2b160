package reporting

import (
	"fmt"
	"sync"
	"sync/atomic"

	"toolhost/pkg/logging"
)

// ChannelObserver buffers events on a channel and drops them when the
// reader falls behind.
type ChannelObserver struct {
	ch      chan Event
	dropped atomic.Int64
	mu      sync.RWMutex
	closed  bool
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(size int) *ChannelObserver {
	if size <= 0 {
		size = 256
	}
	return &ChannelObserver{ch: make(chan Event, size)}
}

// Observe implements Observer.
func (c *ChannelObserver) Observe(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side of the buffer.
func (c *ChannelObserver) Events() <-chan Event { return c.ch }

// Dropped reports how many events were discarded.
func (c *ChannelObserver) Dropped() int64 { return c.dropped.Load() }

// Close closes the channel. Observe becomes a no-op.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// ConsoleObserver writes a one-line summary of each event through pkg/logging.
type ConsoleObserver struct {
	// Verbose also logs stdout lines and message payloads.
	Verbose bool
}

// Observe implements Observer.
func (c ConsoleObserver) Observe(ev Event) {
	subsystem := "server-" + ev.ServerID
	switch ev.Type {
	case EventTypeLog:
		logging.Debug(subsystem, "[%s] %s", ev.Stream, ev.Line)
	case EventTypeStatus:
		msg := "status " + ev.Status
		if ev.ExitCode != nil {
			msg += fmt.Sprintf(" (exit %d)", *ev.ExitCode)
		}
		if ev.Error != "" {
			logging.Warn(subsystem, "%s: %s", msg, ev.Error)
			return
		}
		logging.Info(subsystem, "%s", msg)
	case EventTypeInitialized:
		logging.Info(subsystem, "initialized %s", string(ev.ServerInfo))
	case EventTypeMessage:
		if ev.Message == nil {
			return
		}
		m := ev.Message
		line := fmt.Sprintf("%s %s %s id=%s", m.Direction, m.Kind, m.Method, m.ID)
		if m.LatencyMS > 0 {
			line += fmt.Sprintf(" latency=%dms", m.LatencyMS)
		}
		if c.Verbose && len(m.Payload) > 0 {
			line += " " + string(m.Payload)
		}
		logging.Debug(subsystem, "%s", line)
	}
}
