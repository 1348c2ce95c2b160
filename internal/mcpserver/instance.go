package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"toolhost/internal/pending"
	"toolhost/internal/protocol"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

type phase int

const (
	phaseStarting phase = iota
	phaseRunning
	phaseFailed
	phaseStopping
)

type inputKind int

const (
	inputStdout inputKind = iota
	inputStderr
	inputExit
)

// input is one occurrence on the child's pipes, fanned into the loop.
type input struct {
	kind inputKind
	data []byte
	line string
	err  error
	code int
}

// instance is one spawned process. The loop-owned fields are only touched
// by the run goroutine.
type instance struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	table   *pending.Table

	inputs   chan input
	stopCh   chan struct{}
	stopOnce sync.Once
	started  chan startResult
	done     chan struct{}

	// loop-owned
	phase        phase
	framer       *protocol.Framer
	stderr       strings.Builder
	fatalSeen    bool
	startErr     error
	startPending bool
}

func newInstance(opts Options) *instance {
	return &instance{
		table:        pending.NewTable(opts.RequestTimeout),
		inputs:       make(chan input, 64),
		stopCh:       make(chan struct{}),
		started:      make(chan startResult, 1),
		done:         make(chan struct{}),
		phase:        phaseStarting,
		framer:       protocol.NewFramer(opts.MaxLineSize),
		startPending: true,
	}
}

func (inst *instance) requestStop() {
	inst.stopOnce.Do(func() { close(inst.stopCh) })
}

// watch starts the pipe readers and the waiter. The exit input is sent only
// after both pipes reached EOF, so it is always the last input.
func (inst *instance) watch(stdout, stderr io.Reader) {
	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				inst.inputs <- input{kind: inputStdout, data: chunk}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			inst.inputs <- input{kind: inputStderr, line: scanner.Text()}
		}
		// Keep draining so the child never blocks on a full stderr pipe.
		_, _ = io.Copy(io.Discard, stderr)
	}()

	go func() {
		readers.Wait()
		err := inst.cmd.Wait()
		code := -1
		if inst.cmd.ProcessState != nil {
			code = inst.cmd.ProcessState.ExitCode()
		}
		inst.inputs <- input{kind: inputExit, err: err, code: code}
	}()
}

// write frames msg onto stdin. Writes are serialized; ctx bounds the wait.
func (inst *instance) write(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		inst.writeMu.Lock()
		defer inst.writeMu.Unlock()
		_, err := inst.stdin.Write(data)
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// run is the per-instance event loop. It returns after the process exited.
func (s *Supervisor) run(inst *instance) {
	defer close(inst.done)

	bootstrap := time.NewTimer(s.opts.BootstrapDelay)
	initTimer := time.NewTimer(s.opts.InitTimeout)
	var classify, grace *time.Timer
	defer func() {
		for _, t := range []*time.Timer{bootstrap, initTimer, classify, grace} {
			if t != nil {
				t.Stop()
			}
		}
	}()

	var handshake <-chan pending.Outcome
	stopCh := inst.stopCh

	for {
		select {
		case in := <-inst.inputs:
			switch in.kind {
			case inputStdout:
				for _, frame := range inst.framer.Feed(in.data) {
					s.dispatch(inst, frame)
				}
			case inputStderr:
				if s.handleStderr(inst, in.line) && classify == nil {
					inst.fatalSeen = true
					classify = time.NewTimer(s.opts.ClassifyGrace)
				}
			case inputExit:
				s.handleExit(inst, in)
				return
			}

		case <-bootstrap.C:
			if inst.phase == phaseStarting {
				handshake = s.sendInitialize(inst)
			}

		case out := <-handshake:
			handshake = nil
			initTimer.Stop()
			s.completeHandshake(inst, out)

		case <-initTimer.C:
			if inst.phase == phaseStarting {
				s.failStart(inst, &StartupError{
					Kind:     KindInitTimeout,
					ServerID: s.cfg.ID,
					Detail:   strings.TrimSpace(inst.stderr.String()),
					Err:      fmt.Errorf("no initialize response within %s", s.opts.InitTimeout),
				})
			}

		case <-timerC(classify):
			classify = nil
			if inst.phase == phaseStarting {
				s.failStart(inst, &StartupError{
					Kind:     KindStartupFailureDetected,
					ServerID: s.cfg.ID,
					Detail:   strings.TrimSpace(inst.stderr.String()),
				})
			}

		case <-stopCh:
			stopCh = nil
			if inst.phase != phaseFailed {
				inst.phase = phaseStopping
			}
			inst.table.FailAll(ErrStopped)
			_ = inst.stdin.Close()
			if err := terminateProcess(inst.cmd.Process); err != nil {
				logging.Debug("Supervisor", "SIGTERM to %s failed: %v", s.cfg.ID, err)
			}
			grace = time.NewTimer(s.opts.StopGrace)

		case <-timerC(grace):
			grace = nil
			logging.Warn("Supervisor", "%s did not exit within %s, killing it", s.cfg.ID, s.opts.StopGrace)
			_ = killProcess(inst.cmd.Process)
		}
	}
}

// handleStderr publishes the line and reports whether it looks fatal during startup.
func (s *Supervisor) handleStderr(inst *instance, line string) bool {
	logging.Debug("server-"+s.cfg.ID, "%s", line)
	s.emit(reporting.NewLogEvent(s.cfg.ID, reporting.StreamStderr, line))

	if inst.phase != phaseStarting {
		return false
	}
	inst.stderr.WriteString(line)
	inst.stderr.WriteByte('\n')
	return s.opts.Classifier.IsFatal(line)
}

func (s *Supervisor) sendInitialize(inst *instance) <-chan pending.Outcome {
	// No table timer: the init timer governs the handshake.
	id, outcome := inst.table.RegisterWithTimeout(protocol.MethodInitialize, 0)
	msg, err := protocol.NewRequest(id, protocol.MethodInitialize, protocol.NewInitializeParams(s.opts.ProtocolVersion, s.opts.Client))
	if err != nil {
		inst.table.Cancel(id, err)
		return outcome
	}
	s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
		ID:        msg.IDString(),
		Direction: reporting.DirectionOutgoing,
		Kind:      reporting.MessageRequest,
		Method:    msg.Method,
		Payload:   msg.Params,
	}))
	s.writeAsync(inst, msg)
	return outcome
}

func (s *Supervisor) writeAsync(inst *instance, msg protocol.Message) {
	go func() {
		if err := inst.write(context.Background(), msg); err != nil {
			logging.Debug("Supervisor", "Write of %s to %s failed: %v", msg.Method, s.cfg.ID, err)
		}
	}()
}

func (s *Supervisor) completeHandshake(inst *instance, out pending.Outcome) {
	if inst.phase != phaseStarting {
		return
	}
	if out.Err != nil {
		s.failStart(inst, &StartupError{Kind: KindHandshakeRejected, ServerID: s.cfg.ID, Err: out.Err})
		return
	}
	result, err := protocol.ParseInitializeResult(out.Result)
	if err != nil {
		s.failStart(inst, &StartupError{Kind: KindHandshakeRejected, ServerID: s.cfg.ID, Err: err})
		return
	}

	inst.phase = phaseRunning
	inst.stderr.Reset()
	s.emit(s.setStatus(StatusRunning, nil))

	caps, _ := json.Marshal(result.Capabilities)
	info, _ := json.Marshal(result.ServerInfo)
	s.emit(reporting.NewInitializedEvent(s.cfg.ID, caps, info))
	logging.Info("Supervisor", "%s initialized: %s %s (protocol %s)", s.cfg.ID, result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)

	if note, err := protocol.NewNotification(protocol.NotificationInitialized, nil); err == nil {
		s.writeAsync(inst, note)
	}

	inst.startPending = false
	inst.started <- startResult{result: result}
}

// failStart moves the instance to error and kills the process. Start is
// answered once the exit has been observed.
func (s *Supervisor) failStart(inst *instance, err *StartupError) {
	inst.phase = phaseFailed
	inst.startErr = err
	logging.Error("Supervisor", err, "Start of %s failed", s.cfg.ID)
	s.emit(s.setStatus(StatusError, err))
	inst.table.FailAll(err)
	_ = killProcess(inst.cmd.Process)
}

func (s *Supervisor) handleExit(inst *instance, in input) {
	var (
		next    Status
		lastErr error
		answer  error
		cause   = ErrStopped
	)
	switch inst.phase {
	case phaseStarting:
		// An exit inside the classify grace still counts as the detected failure.
		kind := KindPrematureExit
		if inst.fatalSeen {
			kind = KindStartupFailureDetected
		}
		serr := &StartupError{
			Kind:     kind,
			ServerID: s.cfg.ID,
			Detail:   strings.TrimSpace(inst.stderr.String()),
			Err:      exitError(in),
		}
		logging.Error("Supervisor", serr, "%s exited during startup", s.cfg.ID)
		next, lastErr, answer = StatusError, serr, serr
	case phaseFailed:
		next, lastErr, answer = StatusError, inst.startErr, inst.startErr
	case phaseRunning:
		next, lastErr = StatusStopped, fmt.Errorf("%w: %v", ErrUnexpectedExit, exitError(in))
		cause = ErrUnexpectedExit
		logging.Warn("Supervisor", "%s exited with code %d", s.cfg.ID, in.code)
	case phaseStopping:
		next, answer = StatusStopped, ErrStopped
		logging.Info("Supervisor", "%s stopped", s.cfg.ID)
	}
	inst.table.FailAll(cause)

	s.mu.Lock()
	s.inst = nil
	changed := s.status != next
	s.status = next
	s.lastErr = lastErr
	s.mu.Unlock()

	if changed {
		s.emit(reporting.NewStatusEvent(s.cfg.ID, string(next), lastErr).WithExit(in.code))
	}

	if inst.startPending {
		inst.startPending = false
		inst.started <- startResult{err: answer}
	}
}

func exitError(in input) error {
	if in.err != nil {
		return in.err
	}
	return fmt.Errorf("exit code %d", in.code)
}

// dispatch routes one framed line. Nothing here may fail the loop.
func (s *Supervisor) dispatch(inst *instance, frame protocol.Frame) {
	if frame.Err != nil {
		logging.Warn("Supervisor", "Dropping malformed line from %s: %v", s.cfg.ID, frame.Err)
		s.emit(reporting.NewLogEvent(s.cfg.ID, reporting.StreamStdout, string(frame.Raw)))
		return
	}

	msg := frame.Message
	switch msg.Kind() {
	case protocol.KindResponse:
		id, ok := msg.NumericID()
		if !ok {
			logging.Debug("Supervisor", "Response from %s with non-numeric id %s ignored", s.cfg.ID, msg.IDString())
			return
		}
		method, latency, ok := inst.table.Resolve(id, msg.Result, msg.Error)
		if !ok {
			logging.Debug("Supervisor", "No pending request %d for %s", id, s.cfg.ID)
			return
		}
		kind, payload := reporting.MessageResponse, msg.Result
		if msg.Error != nil {
			kind = reporting.MessageError
			payload, _ = json.Marshal(msg.Error)
		}
		s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
			ID:        msg.IDString(),
			Direction: reporting.DirectionIncoming,
			Kind:      kind,
			Method:    method,
			Payload:   payload,
			LatencyMS: latency.Milliseconds(),
		}))

	case protocol.KindNotification:
		s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
			Direction: reporting.DirectionIncoming,
			Kind:      reporting.MessageNotification,
			Method:    msg.Method,
			Payload:   msg.Params,
		}))

	case protocol.KindRequest:
		s.emit(reporting.NewMessageEvent(s.cfg.ID, reporting.MessageInfo{
			ID:        msg.IDString(),
			Direction: reporting.DirectionIncoming,
			Kind:      reporting.MessageRequest,
			Method:    msg.Method,
			Payload:   msg.Params,
		}))
		s.answerServerRequest(inst, msg)
	}
}

// answerServerRequest replies to requests the server sends to the host.
// Only ping is supported.
func (s *Supervisor) answerServerRequest(inst *instance, req protocol.Message) {
	reply := protocol.Message{JSONRPC: protocol.Version, ID: req.ID}
	if req.Method == protocol.MethodPing {
		reply.Result = json.RawMessage(`{}`)
	} else {
		reply.Error = &protocol.RPCError{Code: -32601, Message: "method not found: " + req.Method}
	}
	s.writeAsync(inst, reply)
}
