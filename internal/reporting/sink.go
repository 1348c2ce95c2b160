package reporting

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"toolhost/pkg/logging"
)

// Observer receives events. Implementations must return quickly.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Filter decides whether an event reaches a subscriber.
type Filter func(Event) bool

// SinkMetrics tracks delivery counters.
type SinkMetrics struct {
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	ObserverPanics      int64
	EventsByType        map[EventType]int64
	LastEventTime       time.Time
}

type subscription struct {
	id       string
	filter   Filter
	observer Observer
}

// Sink delivers every published event to all matching subscribers.
type Sink struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	order   []string
	metrics SinkMetrics
	closed  bool
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{
		subs:    make(map[string]*subscription),
		metrics: SinkMetrics{EventsByType: make(map[EventType]int64)},
	}
}

// Subscribe registers obs and returns a function that removes it. A nil
// filter matches everything.
func (s *Sink) Subscribe(filter Filter, obs Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || obs == nil {
		return func() {}
	}

	id := uuid.NewString()
	s.subs[id] = &subscription{id: id, filter: filter, observer: obs}
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Sink) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every matching observer in subscription order.
// A panicking observer is logged and skipped.
func (s *Sink) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	targets := make([]*subscription, 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, s.subs[id])
	}
	s.mu.RUnlock()

	var delivered, panics int64
	for _, sub := range targets {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		if deliver(sub.observer, ev) {
			delivered++
		} else {
			panics++
		}
	}

	s.mu.Lock()
	s.metrics.EventsPublished++
	s.metrics.EventsDelivered += delivered
	s.metrics.ObserverPanics += panics
	s.metrics.EventsByType[ev.Type]++
	s.metrics.LastEventTime = ev.Timestamp
	s.mu.Unlock()
}

func deliver(obs Observer, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("EventSink", nil, "observer panicked on %s event for %s: %v", ev.Type, ev.ServerID, r)
			ok = false
		}
	}()
	obs.Observe(ev)
	return true
}

// Metrics returns a snapshot of the delivery counters.
func (s *Sink) Metrics() SinkMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.metrics
	m.ActiveSubscriptions = len(s.subs)
	m.EventsByType = make(map[EventType]int64, len(s.metrics.EventsByType))
	for k, v := range s.metrics.EventsByType {
		m.EventsByType[k] = v
	}
	return m
}

// Close drops all subscribers. Later publishes are ignored.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[string]*subscription)
	s.order = nil
}

// FilterByType matches events of the given types.
func FilterByType(types ...EventType) Filter {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(ev Event) bool { return set[ev.Type] }
}

// FilterByServer matches events from the given servers.
func FilterByServer(ids ...string) Filter {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(ev Event) bool { return set[ev.ServerID] }
}

// CombineFilters matches when every filter matches.
func CombineFilters(filters ...Filter) Filter {
	return func(ev Event) bool {
		for _, f := range filters {
			if f != nil && !f(ev) {
				return false
			}
		}
		return true
	}
}
