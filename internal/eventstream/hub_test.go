package eventstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"toolhost/internal/config"
	"toolhost/internal/reporting"
)

// connect opens the stream and returns its events once the ready event arrived.
func connect(t *testing.T, ctx context.Context, url string) <-chan sse.Event {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan sse.Event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				return
			}
			events <- ev
		}
	}()

	select {
	case ev := <-events:
		require.Equal(t, ReadyEventType, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no ready event")
	}
	return events
}

func next(t *testing.T, events <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream ended")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return sse.Event{}
}

func TestHub_StreamsFilteredEvents(t *testing.T) {
	hub := NewHub(16)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := connect(t, ctx, srv.URL+"?server=alpha")
	assert.Equal(t, 1, hub.Clients())

	hub.Observe(reporting.NewLogEvent("beta", reporting.StreamStderr, "ignored"))
	hub.Observe(reporting.NewLogEvent("alpha", reporting.StreamStderr, "booting"))
	hub.Observe(reporting.NewStatusEvent("alpha", "running", nil))

	ev := next(t, events)
	assert.Equal(t, "log", ev.Type)
	var decoded reporting.Event
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &decoded))
	assert.Equal(t, "alpha", decoded.ServerID)
	assert.Equal(t, "booting", decoded.Line)

	ev = next(t, events)
	assert.Equal(t, "status", ev.Type)
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &decoded))
	assert.Equal(t, "running", decoded.Status)
}

func TestHub_TypeFilter(t *testing.T) {
	hub := NewHub(16)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := connect(t, ctx, srv.URL+"?type=status")

	hub.Observe(reporting.NewLogEvent("a", reporting.StreamStderr, "noise"))
	hub.Observe(reporting.NewStatusEvent("a", "stopped", nil))

	assert.Equal(t, "status", next(t, events).Type)
}

func TestHub_CloseEndsStreams(t *testing.T) {
	hub := NewHub(16)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	events := connect(t, context.Background(), srv.URL)
	hub.Close()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Close")
	}
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_DropsForSlowClients(t *testing.T) {
	hub := NewHub(1)
	c, ok := hub.add(nil)
	require.True(t, ok)

	hub.Observe(reporting.NewLogEvent("a", reporting.StreamStdout, "one"))
	hub.Observe(reporting.NewLogEvent("a", reporting.StreamStdout, "two"))

	assert.Len(t, c.msgs, 1)
	assert.Equal(t, int64(1), hub.Dropped())
}

func TestHub_RejectsNonGet(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHub(0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, EventsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	s := NewServer(config.EventsConfig{AllowedOrigins: []string{"http://dash.local"}}, NewHub(0))
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok","clients":0}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_DefaultCORSAllowsLocalPorts(t *testing.T) {
	h := NewServer(config.EventsConfig{}, NewHub(0)).Handler()

	tests := []struct {
		origin  string
		allowed bool
	}{
		{origin: "http://localhost", allowed: true},
		{origin: "http://localhost:3000", allowed: true},
		{origin: "http://127.0.0.1:5173", allowed: true},
		{origin: "http://localhost.evil.example", allowed: false},
		{origin: "http://evil.example:3000", allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if tt.allowed {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestServer_StartStop(t *testing.T) {
	hub := NewHub(0)
	s := NewServer(config.EventsConfig{Addr: "127.0.0.1:0"}, hub)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"status":"ok"`)

	events := connect(t, context.Background(), "http://"+s.Addr()+EventsPath)

	require.NoError(t, s.Stop(context.Background()))
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Stop")
	}
	assert.NoError(t, s.Stop(context.Background()))
}
