// Package eventstream publishes supervisor events to HTTP clients as
// server-sent events. It is the ambient observer shared by all servers.
package eventstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

// ReadyEventType is sent once to every client right after it subscribed.
const ReadyEventType = "ready"

const defaultClientBuffer = 256

type client struct {
	id     string
	filter reporting.Filter
	msgs   chan *sse.Message
}

// Hub fans events out to connected SSE clients. Slow clients lose events
// instead of stalling the publisher.
type Hub struct {
	bufferSize int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	done    chan struct{}

	dropped atomic.Int64
}

// NewHub creates a hub. bufferSize bounds the per-client backlog.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultClientBuffer
	}
	return &Hub{
		bufferSize: bufferSize,
		clients:    make(map[string]*client),
		done:       make(chan struct{}),
	}
}

// Observe implements reporting.Observer.
func (h *Hub) Observe(ev reporting.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("EventStream", err, "Failed to encode %s event of %s", ev.Type, ev.ServerID)
		return
	}
	msg := &sse.Message{Type: sse.Type(string(ev.Type))}
	msg.AppendData(string(data))

	for _, c := range h.clients {
		if c.filter != nil && !c.filter(ev) {
			continue
		}
		select {
		case c.msgs <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped because a client fell behind.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) add(filter reporting.Filter) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{
		id:     uuid.New().String(),
		filter: filter,
		msgs:   make(chan *sse.Message, h.bufferSize),
	}
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// ServeHTTP streams events until the client goes away or the hub closes.
// The query parameters server and type narrow the stream and may repeat.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, ok := h.add(filterFromQuery(r))
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.remove(c.id)

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		nErr := fmt.Errorf("failed to upgrade session: %w", err)
		logging.Error("EventStream", nErr, "Rejecting client %s", c.id)
		http.Error(w, nErr.Error(), http.StatusInternalServerError)
		return
	}

	ready := &sse.Message{Type: sse.Type(ReadyEventType)}
	ready.AppendData(c.id)
	if err := send(sess, ready); err != nil {
		logging.Debug("EventStream", "Client %s left before ready: %v", c.id, err)
		return
	}
	logging.Debug("EventStream", "Client %s connected", c.id)

	for {
		select {
		case msg := <-c.msgs:
			if err := send(sess, msg); err != nil {
				logging.Debug("EventStream", "Client %s write failed: %v", c.id, err)
				return
			}
		case <-r.Context().Done():
			logging.Debug("EventStream", "Client %s disconnected", c.id)
			return
		case <-h.done:
			return
		}
	}
}

func send(sess *sse.Session, msg *sse.Message) error {
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}

func filterFromQuery(r *http.Request) reporting.Filter {
	q := r.URL.Query()
	var filters []reporting.Filter
	if ids := q["server"]; len(ids) > 0 {
		filters = append(filters, reporting.FilterByServer(ids...))
	}
	if raw := q["type"]; len(raw) > 0 {
		types := make([]reporting.EventType, 0, len(raw))
		for _, t := range raw {
			types = append(types, reporting.EventType(t))
		}
		filters = append(filters, reporting.FilterByType(types...))
	}
	if len(filters) == 0 {
		return nil
	}
	return reporting.CombineFilters(filters...)
}
