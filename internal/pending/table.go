// Package pending correlates outgoing requests with the responses that
// eventually settle them.
package pending

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"toolhost/internal/protocol"
)

// DefaultTimeout is applied to a registration that does not choose its own.
const DefaultTimeout = 5 * time.Second

// ErrRequestTimeout is matched by every TimeoutError.
var ErrRequestTimeout = errors.New("request timed out")

// TimeoutError reports a request whose response never arrived.
type TimeoutError struct {
	Method string
	ID     int64
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %d (%s) timed out after %s", e.ID, e.Method, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrRequestTimeout }

// Outcome is delivered exactly once per registration.
type Outcome struct {
	Result  json.RawMessage
	Err     error
	Latency time.Duration
}

type entry struct {
	method  string
	created time.Time
	timer   *time.Timer
	done    chan Outcome
}

// Table tracks in-flight requests by id. Ids start at 1 and are never
// reused for the lifetime of the table. After FailAll the table is closed:
// later registrations fail immediately with the same error.
type Table struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*entry
	closed  error
	timeout time.Duration
	now     func() time.Time
}

// NewTable returns an empty table. A non-positive timeout selects DefaultTimeout.
func NewTable(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		entries: make(map[int64]*entry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Register allocates the next id with the table's default timeout.
func (t *Table) Register(method string) (int64, <-chan Outcome) {
	return t.RegisterWithTimeout(method, t.timeout)
}

// RegisterWithTimeout allocates the next id. A non-positive timeout arms no
// timer; the caller is then responsible for settling the entry through
// Resolve, Cancel or FailAll.
func (t *Table) RegisterWithTimeout(method string, timeout time.Duration) (int64, <-chan Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	e := &entry{
		method:  method,
		created: t.now(),
		done:    make(chan Outcome, 1),
	}
	if t.closed != nil {
		e.done <- Outcome{Err: fmt.Errorf("request %d (%s): %w", id, method, t.closed)}
		return id, e.done
	}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { t.expire(id, timeout) })
	}
	t.entries[id] = e
	return id, e.done
}

func (t *Table) expire(id int64, after time.Duration) {
	e := t.take(id)
	if e == nil {
		return
	}
	e.done <- Outcome{
		Err:     &TimeoutError{Method: e.method, ID: id, After: after},
		Latency: t.now().Sub(e.created),
	}
}

// take removes the entry under the lock. Whoever takes it settles it.
func (t *Table) take(id int64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

// Resolve settles id with a result or a remote error. It returns the
// original method and the elapsed time. Unknown ids are ignored.
func (t *Table) Resolve(id int64, result json.RawMessage, rpcErr *protocol.RPCError) (string, time.Duration, bool) {
	e := t.take(id)
	if e == nil {
		return "", 0, false
	}
	latency := t.now().Sub(e.created)
	out := Outcome{Result: result, Latency: latency}
	if rpcErr != nil {
		out = Outcome{Err: rpcErr, Latency: latency}
	}
	e.done <- out
	return e.method, latency, true
}

// Cancel settles id with err. Unknown ids are ignored.
func (t *Table) Cancel(id int64, err error) bool {
	e := t.take(id)
	if e == nil {
		return false
	}
	e.done <- Outcome{Err: err, Latency: t.now().Sub(e.created)}
	return true
}

// FailAll settles every outstanding entry with err, closes the table and
// returns how many were failed. The first close error is kept.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	if t.closed == nil {
		t.closed = err
	}
	taken := t.entries
	t.entries = make(map[int64]*entry)
	t.mu.Unlock()

	now := t.now()
	for id, e := range taken {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.done <- Outcome{Err: fmt.Errorf("request %d (%s): %w", id, e.method, err), Latency: now.Sub(e.created)}
	}
	return len(taken)
}

// Method returns the method recorded for an outstanding id.
func (t *Table) Method(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return "", false
	}
	return e.method, true
}

// Len reports the number of outstanding requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
