package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/registry"
	"toolhost/internal/reporting"
)

type fakeBackend struct {
	tools    []mcp.Tool
	lastTool string
	lastArgs map[string]any
	lastReq  string
	params   any
	status   registry.ServerStatus
	logs     []reporting.LogLine
	callErr  error
}

func (f *fakeBackend) ListTools(ctx context.Context, id string) ([]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeBackend) CallTool(ctx context.Context, id, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.lastTool, f.lastArgs = name, args
	if f.callErr != nil {
		return nil, f.callErr
	}
	if name == "fail" {
		return mcp.NewToolResultError("it broke"), nil
	}
	return mcp.NewToolResultText("called " + name), nil
}

func (f *fakeBackend) Request(ctx context.Context, id, method string, params any) (json.RawMessage, error) {
	f.lastReq, f.params = method, params
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeBackend) Status(id string) (registry.ServerStatus, error) { return f.status, nil }

func (f *fakeBackend) Logs(id string, n int) []reporting.LogLine {
	if n < len(f.logs) {
		return f.logs[len(f.logs)-n:]
	}
	return f.logs
}

func newTestREPL() (*REPL, *fakeBackend, *bytes.Buffer) {
	backend := &fakeBackend{
		tools: []mcp.Tool{
			mcp.NewTool("echo", mcp.WithDescription("Echoes"), mcp.WithString("text", mcp.Required())),
		},
		status: registry.ServerStatus{ID: "fx", Status: "running", PID: 10},
	}
	var buf bytes.Buffer
	return New(backend, "fx", &buf), backend, &buf
}

func TestExecuteCommand_Call(t *testing.T) {
	r, backend, buf := newTestREPL()
	ctx := context.Background()

	require.NoError(t, r.executeCommand(ctx, `call echo {"text": "hi there"}`))
	assert.Equal(t, "echo", backend.lastTool)
	assert.Equal(t, map[string]any{"text": "hi there"}, backend.lastArgs)
	assert.Contains(t, buf.String(), "called echo")

	require.NoError(t, r.executeCommand(ctx, "call echo text=hi n=3"))
	assert.Equal(t, map[string]any{"text": "hi", "n": float64(3)}, backend.lastArgs)

	require.NoError(t, r.executeCommand(ctx, "call echo"))
	assert.Nil(t, backend.lastArgs)

	buf.Reset()
	require.NoError(t, r.executeCommand(ctx, "call fail"))
	assert.Contains(t, buf.String(), "it broke")

	assert.Error(t, r.executeCommand(ctx, "call echo {bad"))
	assert.Error(t, r.executeCommand(ctx, "call"))

	backend.callErr = errors.New("server is not running")
	err := r.executeCommand(ctx, "call echo")
	assert.ErrorContains(t, err, "tool execution failed")
}

func TestExecuteCommand_Request(t *testing.T) {
	r, backend, buf := newTestREPL()

	require.NoError(t, r.executeCommand(context.Background(), `request tools/list {"cursor": "x"}`))
	assert.Equal(t, "tools/list", backend.lastReq)
	assert.Equal(t, map[string]any{"cursor": "x"}, backend.params)
	assert.Contains(t, buf.String(), `"ok": true`)

	require.NoError(t, r.executeCommand(context.Background(), "request ping"))
	assert.Nil(t, backend.params)

	assert.Error(t, r.executeCommand(context.Background(), "request ping {nope"))
}

func TestExecuteCommand_Describe(t *testing.T) {
	r, _, buf := newTestREPL()

	require.NoError(t, r.executeCommand(context.Background(), "describe echo"))
	assert.Contains(t, buf.String(), "Description: Echoes")
	assert.Contains(t, buf.String(), "text (required)")

	assert.EqualError(t, r.executeCommand(context.Background(), "describe nope"), "tool not found: nope")
}

func TestExecuteCommand_Misc(t *testing.T) {
	r, backend, buf := newTestREPL()
	ctx := context.Background()

	require.NoError(t, r.executeCommand(ctx, "help"))
	assert.Contains(t, buf.String(), "Available commands")

	require.NoError(t, r.executeCommand(ctx, "tools"))
	assert.Contains(t, buf.String(), "echo")

	backend.logs = []reporting.LogLine{{Stream: reporting.StreamStderr, Line: "first"}, {Stream: reporting.StreamStderr, Line: "second"}}
	buf.Reset()
	require.NoError(t, r.executeCommand(ctx, "logs 1"))
	assert.Contains(t, buf.String(), "second")
	assert.NotContains(t, buf.String(), "first")
	assert.Error(t, r.executeCommand(ctx, "logs -2"))

	assert.ErrorIs(t, r.executeCommand(ctx, "quit"), errExit)
	assert.ErrorContains(t, r.executeCommand(ctx, "frobnicate"), "unknown command")
}

func TestObserve_Notifications(t *testing.T) {
	r, _, buf := newTestREPL()

	incoming := reporting.NewMessageEvent("fx", reporting.MessageInfo{
		Direction: reporting.DirectionIncoming,
		Kind:      reporting.MessageNotification,
		Method:    "notifications/message",
		Payload:   json.RawMessage(`{"level":"info"}`),
	})
	r.Observe(incoming)
	assert.Contains(t, buf.String(), `[notification] notifications/message {"level":"info"}`)

	buf.Reset()
	other := incoming
	other.ServerID = "other"
	r.Observe(other)
	assert.Empty(t, buf.String())

	require.NoError(t, r.executeCommand(context.Background(), "notifications off"))
	buf.Reset()
	r.Observe(incoming)
	assert.Empty(t, buf.String())

	assert.Error(t, r.executeCommand(context.Background(), "notifications maybe"))
}

func TestRun_RequiresRunningServer(t *testing.T) {
	r, backend, _ := newTestREPL()
	backend.status.Status = "stopped"
	err := r.Run(context.Background())
	assert.ErrorContains(t, err, "is stopped")
}
