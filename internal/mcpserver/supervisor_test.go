package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/config"
	"toolhost/internal/pending"
	"toolhost/internal/protocol"
	"toolhost/internal/reporting"
)

type eventLog struct {
	mu     sync.Mutex
	events []reporting.Event
}

func (l *eventLog) Observe(ev reporting.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) find(match func(reporting.Event) bool) (reporting.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if match(ev) {
			return ev, true
		}
	}
	return reporting.Event{}, false
}

func (l *eventLog) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Type == reporting.EventTypeStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BootstrapDelay = 10 * time.Millisecond
	opts.InitTimeout = 5 * time.Second
	opts.RequestTimeout = 2 * time.Second
	opts.StopGrace = 2 * time.Second
	return opts
}

func newTestSupervisor(t *testing.T, cfg config.ServerConfig, tweak func(*Options)) (*Supervisor, *eventLog) {
	t.Helper()
	opts := testOptions()
	if tweak != nil {
		tweak(&opts)
	}
	sink := reporting.NewSink()
	log := &eventLog{}
	sink.Subscribe(nil, log)

	sup := New(cfg, opts, sink)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	return sup, log
}

func startHelper(t *testing.T, mode string, tweak func(*Options)) (*Supervisor, *eventLog) {
	t.Helper()
	sup, log := newTestSupervisor(t, helperServer("helper-"+mode, mode), tweak)
	result, err := sup.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	return sup, log
}

func TestSupervisor_StartRequestStop(t *testing.T) {
	sup, log := newTestSupervisor(t, helperServer("echo", "good"), nil)

	result, err := sup.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "helper", result.ServerInfo.Name)
	assert.Equal(t, StatusRunning, sup.Status())
	assert.NotZero(t, sup.PID())

	initialized, ok := log.find(func(ev reporting.Event) bool { return ev.Type == reporting.EventTypeInitialized })
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"helper","version":"1.0.0"}`, string(initialized.ServerInfo))

	raw, err := sup.SendRequest(context.Background(), protocol.MethodToolsList, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"echo"`)

	raw, err = sup.SendRequest(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(raw))

	require.NoError(t, sup.Stop(context.Background()))
	assert.Equal(t, StatusStopped, sup.Status())
	assert.Zero(t, sup.PID())
	assert.Equal(t, []string{"starting", "running", "stopped"}, log.statuses())

	// Stop on a stopped server is a no-op.
	require.NoError(t, sup.Stop(context.Background()))
}

func TestSupervisor_ResponseEventsCarryLatencyAndMethod(t *testing.T) {
	sup, log := startHelper(t, "good", nil)

	_, err := sup.SendRequest(context.Background(), "echo", map[string]any{"n": 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := log.find(func(ev reporting.Event) bool {
			return ev.Type == reporting.EventTypeMessage &&
				ev.Message.Direction == reporting.DirectionIncoming &&
				ev.Message.Kind == reporting.MessageResponse &&
				ev.Message.Method == "echo"
		})
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	out, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeMessage &&
			ev.Message.Direction == reporting.DirectionOutgoing &&
			ev.Message.Method == "echo"
	})
	require.True(t, ok)
	// initialize took id 1 on this instance.
	assert.Equal(t, "2", out.Message.ID)
}

func TestSupervisor_ConcurrentRequestsSettleWithTheirOwnResponse(t *testing.T) {
	sup, _ := startHelper(t, "good", nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	tags := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Later requests answer first.
			raw, err := sup.SendRequest(context.Background(), "delay", map[string]any{"ms": (n - i) * 5, "tag": i})
			if err != nil {
				errs[i] = err
				return
			}
			var res struct {
				Tag int `json:"tag"`
			}
			errs[i] = json.Unmarshal(raw, &res)
			tags[i] = res.Tag
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, i, tags[i])
	}
	assert.Zero(t, sup.Pending())
}

func TestSupervisor_TwoResponsesInOneChunk(t *testing.T) {
	sup, _ := startHelper(t, "good", nil)

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sup.SendRequest(context.Background(), "pair", nil)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, string(results[0]), string(results[1]))
}

func TestSupervisor_RequestTimeoutNamesMethod(t *testing.T) {
	sup, _ := startHelper(t, "good", func(o *Options) { o.RequestTimeout = 150 * time.Millisecond })

	started := time.Now()
	_, err := sup.SendRequest(context.Background(), "ignore", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)

	var timeoutErr *pending.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "ignore", timeoutErr.Method)

	// The server is still usable.
	_, err = sup.SendRequest(context.Background(), "echo", map[string]any{})
	assert.NoError(t, err)
}

func TestSupervisor_RemoteError(t *testing.T) {
	sup, log := startHelper(t, "good", nil)

	_, err := sup.SendRequest(context.Background(), "fail", nil)
	var rpcErr *protocol.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "tool exploded", rpcErr.Message)

	require.Eventually(t, func() bool {
		_, ok := log.find(func(ev reporting.Event) bool {
			return ev.Type == reporting.EventTypeMessage && ev.Message.Kind == reporting.MessageError && ev.Message.Method == "fail"
		})
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_StrayResponseIsIgnored(t *testing.T) {
	sup, _ := startHelper(t, "good", nil)

	raw, err := sup.SendRequest(context.Background(), "stray", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, StatusRunning, sup.Status())
}

func TestSupervisor_NotificationsMalformedLinesAndServerPing(t *testing.T) {
	_, log := startHelper(t, "good", nil)

	require.Eventually(t, func() bool {
		_, ok := log.find(func(ev reporting.Event) bool {
			return ev.Type == reporting.EventTypeMessage && ev.Message.Method == "test/pong"
		})
		return ok
	}, 2*time.Second, 10*time.Millisecond, "host should answer the server's ping")

	note, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeMessage && ev.Message.Method == "notifications/message"
	})
	require.True(t, ok)
	assert.Equal(t, reporting.MessageNotification, note.Message.Kind)
	assert.NotEmpty(t, note.Message.ID)

	_, ok = log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeLog && ev.Stream == reporting.StreamStdout && ev.Line == "this line is not json"
	})
	assert.True(t, ok, "malformed stdout line should be surfaced as a log event")
}

func TestSupervisor_InitTimeout(t *testing.T) {
	sup, log := newTestSupervisor(t, helperServer("silent", "silent"), func(o *Options) {
		o.InitTimeout = 300 * time.Millisecond
	})

	started := time.Now()
	_, err := sup.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitTimeout)
	assert.GreaterOrEqual(t, time.Since(started), 300*time.Millisecond)
	assert.Equal(t, StatusError, sup.Status())
	assert.Equal(t, []string{"starting", "error"}, log.statuses())

	var serr *StartupError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindInitTimeout, serr.Kind)
}

func TestSupervisor_StartupFailureDetected(t *testing.T) {
	sup, log := newTestSupervisor(t, helperServer("fatal", "fatal"), nil)

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFailureDetected)
	assert.Contains(t, err.Error(), "Cannot find module 'foo'")
	assert.Equal(t, StatusError, sup.Status())

	_, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeLog && ev.Line == "Error: Cannot find module 'foo'"
	})
	assert.True(t, ok)
}

func TestSupervisor_StartupFailureDetectedWhenServerExitsImmediately(t *testing.T) {
	// The exit arrives well inside the grace period.
	sup, _ := newTestSupervisor(t, helperServer("fatal-exit", "fatal-exit"), func(o *Options) {
		o.ClassifyGrace = 2 * time.Second
	})

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFailureDetected)
	assert.NotErrorIs(t, err, ErrPrematureExit)
	assert.Contains(t, err.Error(), "Cannot find module 'foo'")
	assert.Equal(t, StatusError, sup.Status())

	var serr *StartupError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindStartupFailureDetected, serr.Kind)
	assert.Error(t, serr.Err)
}

func TestSupervisor_CustomClassifierIgnoresNoise(t *testing.T) {
	sup, _ := newTestSupervisor(t, helperServer("fatal-ignored", "fatal"), func(o *Options) {
		o.Classifier = NewPatternClassifier("segmentation fault")
		o.InitTimeout = 200 * time.Millisecond
	})

	_, err := sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrInitTimeout)
}

func TestSupervisor_PrematureExit(t *testing.T) {
	sup, _ := newTestSupervisor(t, helperServer("crash", "crash"), nil)

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrematureExit)
	assert.Equal(t, StatusError, sup.Status())
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	sup, log := newTestSupervisor(t, config.ServerConfig{ID: "missing", Command: "/non/existent/command"}, nil)

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailure)
	assert.Equal(t, StatusError, sup.Status())
	assert.Equal(t, []string{"starting", "error"}, log.statuses())

	// A failed spawn leaves no instance behind.
	_, err = sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrSpawnFailure)
}

func TestSupervisor_NotRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, helperServer("idle", "good"), nil)

	_, err := sup.SendRequest(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, sup.SendNotification(context.Background(), "x", nil), ErrNotRunning)
}

func TestSupervisor_AlreadyStarted(t *testing.T) {
	sup, _ := startHelper(t, "good", nil)

	_, err := sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSupervisor_StopForceKillsStubbornProcess(t *testing.T) {
	sup, log := startHelper(t, "stubborn", func(o *Options) { o.StopGrace = 300 * time.Millisecond })

	started := time.Now()
	require.NoError(t, sup.Stop(context.Background()))
	elapsed := time.Since(started)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, StatusStopped, sup.Status())

	ev, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeStatus && ev.Status == string(StatusStopped)
	})
	require.True(t, ok)
	require.NotNil(t, ev.Clean)
	assert.False(t, *ev.Clean)
}

func TestSupervisor_StopFailsOutstandingRequests(t *testing.T) {
	sup, _ := startHelper(t, "good", nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := sup.SendRequest(context.Background(), "ignore", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return sup.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("outstanding request was not failed by Stop")
	}
}

func TestSupervisor_UnexpectedExit(t *testing.T) {
	sup, log := startHelper(t, "good", nil)
	done := sup.Done()

	_, err := sup.SendRequest(context.Background(), "exit", nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process exit was not observed")
	}
	assert.Equal(t, StatusStopped, sup.Status())
	assert.ErrorIs(t, sup.LastError(), ErrUnexpectedExit)

	ev, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeStatus && ev.Status == string(StatusStopped)
	})
	require.True(t, ok)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 7, *ev.ExitCode)
	assert.False(t, *ev.Clean)
}

func TestSupervisor_RestartResetsRequestIDs(t *testing.T) {
	sup, log := startHelper(t, "good", nil)
	require.NoError(t, sup.Stop(context.Background()))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	_, err = sup.SendRequest(context.Background(), "echo", map[string]any{"round": 2})
	require.NoError(t, err)

	ev, ok := log.find(func(ev reporting.Event) bool {
		return ev.Type == reporting.EventTypeMessage && ev.Message.Method == "echo" &&
			ev.Message.Direction == reporting.DirectionOutgoing
	})
	require.True(t, ok)
	assert.Equal(t, "2", ev.Message.ID)
}

func TestSupervisor_StartCancelledByContext(t *testing.T) {
	sup, _ := newTestSupervisor(t, helperServer("silent-cancel", "silent"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := sup.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusStopped, sup.Status())
}

func TestSupervisor_PrimaryObserverPanicIsContained(t *testing.T) {
	sup, log := newTestSupervisor(t, helperServer("observed", "good"), nil)
	sup.SetObserver(reporting.ObserverFunc(func(reporting.Event) { panic("detail view crashed") }))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	assert.Contains(t, log.statuses(), "running")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Client.Name = "custom"
	cfg.Timeouts.Request = 42 * time.Second

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "custom", opts.Client.Name)
	assert.Equal(t, 42*time.Second, opts.RequestTimeout)
	assert.Equal(t, 10*time.Second, opts.InitTimeout)
	assert.Equal(t, 100*time.Millisecond, opts.BootstrapDelay)
}
