package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"toolhost/internal/config"
	"toolhost/internal/protocol"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

// For mocking in tests
var execCommand = exec.Command

// Status is the lifecycle state of a Supervisor.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

// Options tune a Supervisor. Zero durations fall back to the defaults.
type Options struct {
	Client          mcp.Implementation
	ProtocolVersion string

	InitTimeout    time.Duration
	RequestTimeout time.Duration
	StopGrace      time.Duration
	BootstrapDelay time.Duration
	// ClassifyGrace is how long stderr keeps accumulating after the first
	// fatal-looking line before the start is failed.
	ClassifyGrace time.Duration

	Classifier  Classifier
	MaxLineSize int
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		Client:          mcp.Implementation{Name: "toolhost", Version: "dev"},
		ProtocolVersion: protocol.DefaultProtocolVersion,
		InitTimeout:     config.DefaultInitTimeout,
		RequestTimeout:  config.DefaultRequestTimeout,
		StopGrace:       config.DefaultStopGrace,
		BootstrapDelay:  config.DefaultBootstrapDelay,
		ClassifyGrace:   100 * time.Millisecond,
		Classifier:      DefaultClassifier(),
		MaxLineSize:     protocol.DefaultMaxLineSize,
	}
}

// OptionsFromConfig maps the loaded configuration onto supervisor options.
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	if cfg.Client.Name != "" {
		opts.Client.Name = cfg.Client.Name
	}
	if cfg.Client.Version != "" {
		opts.Client.Version = cfg.Client.Version
	}
	if cfg.ProtocolVersion != "" {
		opts.ProtocolVersion = cfg.ProtocolVersion
	}
	if cfg.Timeouts.Init > 0 {
		opts.InitTimeout = cfg.Timeouts.Init
	}
	if cfg.Timeouts.Request > 0 {
		opts.RequestTimeout = cfg.Timeouts.Request
	}
	if cfg.Timeouts.StopGrace > 0 {
		opts.StopGrace = cfg.Timeouts.StopGrace
	}
	if cfg.Timeouts.BootstrapDelay > 0 {
		opts.BootstrapDelay = cfg.Timeouts.BootstrapDelay
	}
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Client.Name == "" {
		o.Client = d.Client
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = d.ProtocolVersion
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = d.InitTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.StopGrace <= 0 {
		o.StopGrace = d.StopGrace
	}
	if o.BootstrapDelay < 0 {
		o.BootstrapDelay = 0
	}
	if o.ClassifyGrace <= 0 {
		o.ClassifyGrace = d.ClassifyGrace
	}
	if o.Classifier == nil {
		o.Classifier = d.Classifier
	}
	if o.MaxLineSize <= 0 {
		o.MaxLineSize = d.MaxLineSize
	}
	return o
}

// Supervisor owns the child process of one tool server. The Supervisor
// outlives its processes; each Start creates a fresh instance with its own
// request-id counter.
type Supervisor struct {
	cfg  config.ServerConfig
	opts Options
	sink *reporting.Sink

	mu       sync.RWMutex
	status   Status
	lastErr  error
	observer reporting.Observer
	inst     *instance
}

// New creates a stopped Supervisor. Events go to sink, which may be nil.
func New(cfg config.ServerConfig, opts Options, sink *reporting.Sink) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		opts:   opts.withDefaults(),
		sink:   sink,
		status: StatusStopped,
	}
}

// ID returns the server id.
func (s *Supervisor) ID() string { return s.cfg.ID }

// Config returns the definition the Supervisor was built from.
func (s *Supervisor) Config() config.ServerConfig { return s.cfg }

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the error that moved the server to its current state, if any.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// PID returns the pid of the live process, or 0.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inst == nil || s.inst.cmd.Process == nil {
		return 0
	}
	return s.inst.cmd.Process.Pid
}

// Pending reports the number of requests awaiting a response.
func (s *Supervisor) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inst == nil {
		return 0
	}
	return s.inst.table.Len()
}

// SetObserver selects the primary observer for this server. It receives
// every event before the shared sink does. nil clears it.
func (s *Supervisor) SetObserver(obs reporting.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = obs
}

// Start launches the process and blocks until the handshake completed or
// failed. Cancelling ctx stops the process.
func (s *Supervisor) Start(ctx context.Context) (*mcp.InitializeResult, error) {
	s.mu.Lock()
	if s.inst != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("start %s: %w", s.cfg.ID, ErrAlreadyStarted)
	}
	inst := newInstance(s.opts)
	s.inst = inst
	s.status = StatusStarting
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(reporting.NewStatusEvent(s.cfg.ID, string(StatusStarting), nil))

	if err := s.spawn(inst); err != nil {
		serr := &StartupError{Kind: KindSpawnFailure, ServerID: s.cfg.ID, Err: err}
		s.mu.Lock()
		s.inst = nil
		s.status = StatusError
		s.lastErr = serr
		s.mu.Unlock()
		logging.Error("Supervisor", err, "Failed to spawn %s", s.cfg.ID)
		s.emit(reporting.NewStatusEvent(s.cfg.ID, string(StatusError), serr))
		return nil, serr
	}
	logging.Info("Supervisor", "Spawned %s (PID: %d): %s %v", s.cfg.ID, inst.cmd.Process.Pid, s.cfg.Command, s.cfg.Args)

	go s.run(inst)

	select {
	case res := <-inst.started:
		return res.result, res.err
	case <-ctx.Done():
		inst.requestStop()
		<-inst.done
		return nil, ctx.Err()
	}
}

func (s *Supervisor) spawn(inst *instance) error {
	cmd := execCommand(s.cfg.Command, s.cfg.Args...)
	configureCommand(cmd)
	cmd.Env = s.cfg.Environ()
	cmd.Dir = s.cfg.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process %s: %w", s.cfg.Command, err)
	}

	inst.cmd = cmd
	inst.stdin = stdin
	inst.watch(stdout, stderr)
	return nil
}

// Stop terminates the live process, if any, and blocks until it exited.
// The process gets StopGrace to exit after SIGTERM before it is killed.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.RLock()
	inst := s.inst
	s.mu.RUnlock()
	if inst == nil {
		return nil
	}

	inst.requestStop()
	select {
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current process instance is gone.
// It returns a closed channel when no process is live.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inst == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.inst.done
}

func (s *Supervisor) running() (*instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning || s.inst == nil {
		return nil, fmt.Errorf("%s is %s: %w", s.cfg.ID, s.status, ErrNotRunning)
	}
	return s.inst, nil
}

// SendRequest sends method to the running server and waits for its response.
// It fails with a *pending.TimeoutError when no response arrives within
// RequestTimeout, and with a *protocol.RPCError when the server answers
// with an error.
func (s *Supervisor) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	inst, err := s.running()
	if err != nil {
		return nil, err
	}

	id, outcome := inst.table.Register(method)
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		inst.table.Cancel(id, err)
		return nil, err
	}
	s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
		ID:        msg.IDString(),
		Direction: reporting.DirectionOutgoing,
		Kind:      reporting.MessageRequest,
		Method:    method,
		Payload:   msg.Params,
	}))

	if err := inst.write(ctx, msg); err != nil {
		inst.table.Cancel(id, err)
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case out := <-outcome:
		return out.Result, out.Err
	case <-ctx.Done():
		inst.table.Cancel(id, ctx.Err())
		return nil, ctx.Err()
	}
}

// SendNotification writes a notification to the running server.
func (s *Supervisor) SendNotification(ctx context.Context, method string, params any) error {
	inst, err := s.running()
	if err != nil {
		return err
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
		Direction: reporting.DirectionOutgoing,
		Kind:      reporting.MessageNotification,
		Method:    method,
		Payload:   msg.Params,
	}))
	return inst.write(ctx, msg)
}

func (s *Supervisor) setStatus(st Status, err error) reporting.Event {
	s.mu.Lock()
	s.status = st
	s.lastErr = err
	s.mu.Unlock()
	return reporting.NewStatusEvent(s.cfg.ID, string(st), err)
}

func (s *Supervisor) emit(ev reporting.Event) {
	s.mu.RLock()
	primary := s.observer
	s.mu.RUnlock()

	if primary != nil {
		observeSafely(s.cfg.ID, primary, ev)
	}
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

func observeSafely(serverID string, obs reporting.Observer, ev reporting.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Supervisor", nil, "Primary observer of %s panicked: %v", serverID, r)
		}
	}()
	obs.Observe(ev)
}

// startResult settles a pending Start call.
type startResult struct {
	result *mcp.InitializeResult
	err    error
}
