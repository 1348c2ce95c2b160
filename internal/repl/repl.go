// Package repl is an interactive console bound to one running tool server.
package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"

	"toolhost/internal/cli"
	"toolhost/internal/protocol"
	"toolhost/internal/registry"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

var errExit = errors.New("exit")

// Backend is the part of the registry the console drives.
type Backend interface {
	ListTools(ctx context.Context, id string) ([]mcp.Tool, error)
	CallTool(ctx context.Context, id, name string, args map[string]any) (*mcp.CallToolResult, error)
	Request(ctx context.Context, id, method string, params any) (json.RawMessage, error)
	Status(id string) (registry.ServerStatus, error)
	Logs(id string, n int) []reporting.LogLine
}

// REPL represents the Read-Eval-Print Loop for one server.
type REPL struct {
	backend  Backend
	serverID string
	out      io.Writer
	printer  *cli.Printer

	rl *readline.Instance

	mu            sync.Mutex
	notifications bool
	toolNames     []string
}

// New creates a console for serverID writing to out, or stdout when out is nil.
func New(backend Backend, serverID string, out io.Writer) *REPL {
	if out == nil {
		out = os.Stdout
	}
	return &REPL{
		backend:       backend,
		serverID:      serverID,
		out:           out,
		printer:       cli.NewPrinter(cli.PrinterOptions{Format: cli.OutputFormatTable}, out),
		notifications: true,
	}
}

// Observe prints incoming notifications of the bound server while the
// console is waiting for input. It implements reporting.Observer.
func (r *REPL) Observe(ev reporting.Event) {
	if ev.ServerID != r.serverID || ev.Type != reporting.EventTypeMessage || ev.Message == nil {
		return
	}
	if ev.Message.Direction != reporting.DirectionIncoming || ev.Message.Kind != reporting.MessageNotification {
		return
	}

	r.mu.Lock()
	show := r.notifications
	rl := r.rl
	r.mu.Unlock()

	if ev.Message.Method == protocol.NotificationToolsListChanged {
		go r.refreshTools(context.Background())
	}
	if !show {
		return
	}

	line := fmt.Sprintf("[notification] %s %s", ev.Message.Method, string(ev.Message.Payload))
	if rl != nil {
		fmt.Fprintf(rl.Stdout(), "\r\033[K%s\n", line)
		rl.Refresh()
		return
	}
	fmt.Fprintln(r.out, line)
}

// Run reads commands until exit, EOF or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	st, err := r.backend.Status(r.serverID)
	if err != nil {
		return err
	}
	if st.Status != "running" {
		return fmt.Errorf("server %s is %s; start it first", r.serverID, st.Status)
	}
	r.refreshTools(ctx)

	historyFile := filepath.Join(os.TempDir(), ".toolhost_repl_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.serverID + "> ",
		HistoryFile:     historyFile,
		AutoComplete:    r.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	r.mu.Lock()
	r.rl = rl
	r.out = rl.Stdout()
	r.printer = cli.NewPrinter(cli.PrinterOptions{Format: cli.OutputFormatTable}, r.out)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.rl = nil
		r.mu.Unlock()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			rl.Close()
		case <-stop:
		}
	}()

	fmt.Fprintf(r.out, "Connected to %s (PID %d). Type 'help' for commands.\n\n", r.serverID, st.PID)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if err := r.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}
}

func (r *REPL) refreshTools(ctx context.Context) {
	tools, err := r.backend.ListTools(ctx, r.serverID)
	if err != nil {
		logging.Debug("REPL", "Could not list tools of %s: %v", r.serverID, err)
		return
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}

	r.mu.Lock()
	r.toolNames = names
	rl := r.rl
	r.mu.Unlock()
	if rl != nil {
		rl.Config.AutoComplete = r.createCompleter()
	}
}

func (r *REPL) createCompleter() readline.AutoCompleter {
	tools := readline.PcItemDynamic(func(string) []string {
		r.mu.Lock()
		defer r.mu.Unlock()
		return append([]string(nil), r.toolNames...)
	})
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("tools"),
		readline.PcItem("describe", tools),
		readline.PcItem("call", tools),
		readline.PcItem("request"),
		readline.PcItem("status"),
		readline.PcItem("logs"),
		readline.PcItem("notifications", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("exit"),
	)
}

// filterInput blocks Ctrl+Z, which would suspend the terminal.
func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}
