package reporting

import (
	"sync"
	"time"
)

// LogLine is one retained diagnostic line.
type LogLine struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Stream    Stream    `json:"stream" yaml:"stream"`
	Line      string    `json:"line" yaml:"line"`
}

// LogBuffer keeps the most recent log lines of every server.
type LogBuffer struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	lines []LogLine
	next  int
	full  bool
}

// NewLogBuffer keeps up to size lines per server.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 500
	}
	return &LogBuffer{size: size, rings: make(map[string]*ring)}
}

// Observe implements Observer. Only log events are retained.
func (b *LogBuffer) Observe(ev Event) {
	if ev.Type != EventTypeLog {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[ev.ServerID]
	if !ok {
		r = &ring{lines: make([]LogLine, b.size)}
		b.rings[ev.ServerID] = r
	}
	r.lines[r.next] = LogLine{Timestamp: ev.Timestamp, Stream: ev.Stream, Line: ev.Line}
	r.next = (r.next + 1) % b.size
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns up to n of the newest lines for serverID, oldest first.
// n <= 0 returns everything retained.
func (b *LogBuffer) Lines(serverID string, n int) []LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[serverID]
	if !ok {
		return nil
	}
	var all []LogLine
	if r.full {
		all = append(all, r.lines[r.next:]...)
	}
	all = append(all, r.lines[:r.next]...)

	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Clear forgets the lines of serverID.
func (b *LogBuffer) Clear(serverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rings, serverID)
}
