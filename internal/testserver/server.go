// Package testserver is a small tool server speaking the protocol over
// stdio. It backs the mock-server command and the integration tests.
package testserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New builds the server with its fixed tool set.
func New(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Returns the given text unchanged"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
	), handleEcho)

	s.AddTool(mcp.NewTool("add",
		mcp.WithDescription("Adds two numbers"),
		mcp.WithNumber("a", mcp.Required()),
		mcp.WithNumber("b", mcp.Required()),
	), handleAdd)

	s.AddTool(mcp.NewTool("upper",
		mcp.WithDescription("Upper-cases the given text"),
		mcp.WithString("text", mcp.Required()),
	), handleUpper)

	s.AddTool(mcp.NewTool("sleep",
		mcp.WithDescription("Waits before answering"),
		mcp.WithNumber("ms", mcp.Required(), mcp.Description("Milliseconds to wait")),
	), handleSleep)

	s.AddTool(mcp.NewTool("fail",
		mcp.WithDescription("Always returns a tool error"),
	), handleFail)

	return s
}

// ServeStdio runs the server on the process's stdin and stdout until EOF or a signal.
func ServeStdio(name, version string) error {
	return server.ServeStdio(New(name, version))
}

func handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text parameter is required"), nil
	}
	return mcp.NewToolResultText(text), nil
}

func handleUpper(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text parameter is required"), nil
	}
	return mcp.NewToolResultText(strings.ToUpper(text)), nil
}

func number(args map[string]any, key string) (float64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return v, nil
}

func handleAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	a, err := number(args, "a")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := number(args, "b")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
}

func handleSleep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ms, err := number(request.GetArguments(), "ms")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return mcp.NewToolResultText("done"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func handleFail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError("this tool always fails"), nil
}
