package reporting

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestSink_DeliversToEveryObserver(t *testing.T) {
	sink := NewSink()
	primary := &recorder{}
	ambient := &recorder{}
	sink.Subscribe(FilterByServer("echo"), primary)
	sink.Subscribe(nil, ambient)

	sink.Publish(NewStatusEvent("echo", "starting", nil))
	sink.Publish(NewStatusEvent("other", "starting", nil))

	assert.Len(t, primary.all(), 1)
	assert.Len(t, ambient.all(), 2)
	assert.Equal(t, "echo", primary.all()[0].ServerID)

	m := sink.Metrics()
	assert.Equal(t, int64(2), m.EventsPublished)
	assert.Equal(t, int64(3), m.EventsDelivered)
	assert.Equal(t, int64(2), m.EventsByType[EventTypeStatus])
	assert.Equal(t, 2, m.ActiveSubscriptions)
}

func TestSink_PanickingObserverDoesNotAffectOthers(t *testing.T) {
	sink := NewSink()
	sink.Subscribe(nil, ObserverFunc(func(Event) { panic("broken observer") }))
	healthy := &recorder{}
	sink.Subscribe(nil, healthy)

	require.NotPanics(t, func() {
		sink.Publish(NewLogEvent("echo", StreamStderr, "hello"))
	})
	assert.Len(t, healthy.all(), 1)
	assert.Equal(t, int64(1), sink.Metrics().ObserverPanics)
}

func TestSink_Unsubscribe(t *testing.T) {
	sink := NewSink()
	rec := &recorder{}
	unsubscribe := sink.Subscribe(nil, rec)

	sink.Publish(NewLogEvent("echo", StreamStderr, "one"))
	unsubscribe()
	unsubscribe()
	sink.Publish(NewLogEvent("echo", StreamStderr, "two"))

	assert.Len(t, rec.all(), 1)
	assert.Equal(t, 0, sink.Metrics().ActiveSubscriptions)
}

func TestSink_Close(t *testing.T) {
	sink := NewSink()
	rec := &recorder{}
	sink.Subscribe(nil, rec)
	sink.Close()
	sink.Publish(NewLogEvent("echo", StreamStderr, "ignored"))
	assert.Empty(t, rec.all())
}

func TestFilters(t *testing.T) {
	ev := NewStatusEvent("echo", "error", errors.New("boom"))

	assert.True(t, FilterByType(EventTypeStatus, EventTypeLog)(ev))
	assert.False(t, FilterByType(EventTypeMessage)(ev))
	assert.True(t, CombineFilters(FilterByServer("echo"), FilterByType(EventTypeStatus))(ev))
	assert.False(t, CombineFilters(FilterByServer("other"), FilterByType(EventTypeStatus))(ev))
	assert.Equal(t, "boom", ev.Error)
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	obs := NewChannelObserver(1)
	obs.Observe(NewLogEvent("echo", StreamStderr, "kept"))
	obs.Observe(NewLogEvent("echo", StreamStderr, "dropped"))

	assert.Equal(t, int64(1), obs.Dropped())
	ev := <-obs.Events()
	assert.Equal(t, "kept", ev.Line)

	obs.Close()
	obs.Close()
	assert.NotPanics(t, func() { obs.Observe(NewLogEvent("echo", StreamStderr, "late")) })
}

func TestEvent_WithExit(t *testing.T) {
	ev := NewStatusEvent("echo", "stopped", nil).WithExit(3)
	require.NotNil(t, ev.ExitCode)
	require.NotNil(t, ev.Clean)
	assert.Equal(t, 3, *ev.ExitCode)
	assert.False(t, *ev.Clean)

	ev = NewStatusEvent("echo", "stopped", nil).WithExit(0)
	assert.True(t, *ev.Clean)
}

func TestNewMessageEvent_SynthesizesID(t *testing.T) {
	ev := NewMessageEvent("echo", MessageInfo{Direction: DirectionIncoming, Kind: MessageNotification, Method: "notifications/progress"})
	require.NotNil(t, ev.Message)
	assert.NotEmpty(t, ev.Message.ID)

	ev = NewMessageEvent("echo", MessageInfo{ID: "7", Kind: MessageResponse})
	assert.Equal(t, "7", ev.Message.ID)
}

func TestConsoleObserver_HandlesEveryType(t *testing.T) {
	obs := ConsoleObserver{Verbose: true}
	assert.NotPanics(t, func() {
		obs.Observe(NewLogEvent("echo", StreamStderr, "line"))
		obs.Observe(NewStatusEvent("echo", "stopped", nil).WithExit(1))
		obs.Observe(NewInitializedEvent("echo", []byte(`{}`), []byte(`{"name":"x"}`)))
		obs.Observe(NewMessageEvent("echo", MessageInfo{Direction: DirectionOutgoing, Kind: MessageRequest, Method: "ping", LatencyMS: 4}))
		obs.Observe(Event{ServerID: "echo", Type: EventTypeMessage})
	})
}
