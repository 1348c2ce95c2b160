package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"toolhost/internal/cli"
)

// executeCommand parses and executes a command
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	command, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case "help", "?":
		r.showHelp()
		return nil

	case "tools", "list":
		tools, err := r.backend.ListTools(ctx, r.serverID)
		if err != nil {
			return err
		}
		return r.printer.PrintTools(tools)

	case "describe":
		if rest == "" {
			return fmt.Errorf("usage: describe <tool>")
		}
		return r.describeTool(ctx, rest)

	case "call":
		if rest == "" {
			return fmt.Errorf("usage: call <tool> [{json} | key=value ...]")
		}
		return r.handleCallTool(ctx, rest)

	case "request":
		if rest == "" {
			return fmt.Errorf("usage: request <method> [{json}]")
		}
		return r.handleRequest(ctx, rest)

	case "status":
		st, err := r.backend.Status(r.serverID)
		if err != nil {
			return err
		}
		return r.printer.Print(st)

	case "logs":
		n := 20
		if rest != "" {
			v, err := strconv.Atoi(rest)
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: logs [count]")
			}
			n = v
		}
		return r.printer.PrintLogs(r.backend.Logs(r.serverID, n))

	case "notifications":
		return r.handleNotifications(rest)

	case "exit", "quit":
		return errExit

	default:
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}
}

// showHelp displays available commands
func (r *REPL) showHelp() {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out, "  help, ?                      - Show this help message")
	fmt.Fprintln(r.out, "  tools                        - List the server's tools")
	fmt.Fprintln(r.out, "  describe <tool>              - Show a tool's input schema")
	fmt.Fprintln(r.out, "  call <tool> {json}           - Call a tool with JSON arguments")
	fmt.Fprintln(r.out, "  call <tool> key=value ...    - Call a tool with key=value arguments")
	fmt.Fprintln(r.out, "  request <method> {json}      - Send a raw request")
	fmt.Fprintln(r.out, "  status                       - Show the server's status")
	fmt.Fprintln(r.out, "  logs [count]                 - Show recent diagnostic output")
	fmt.Fprintln(r.out, "  notifications <on|off>       - Show or hide server notifications")
	fmt.Fprintln(r.out, "  exit, quit                   - Leave the console")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Examples:")
	fmt.Fprintln(r.out, `  call add {"a": 2, "b": 3}`)
	fmt.Fprintln(r.out, "  call echo text=hello")
	fmt.Fprintln(r.out, "  request ping")
}

func (r *REPL) describeTool(ctx context.Context, name string) error {
	tools, err := r.backend.ListTools(ctx, r.serverID)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if t.Name != name {
			continue
		}
		fmt.Fprintf(r.out, "Name:        %s\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(r.out, "Description: %s\n", t.Description)
		}
		props := make([]string, 0, len(t.InputSchema.Properties))
		for p := range t.InputSchema.Properties {
			props = append(props, p)
		}
		sort.Strings(props)
		if len(props) == 0 {
			fmt.Fprintln(r.out, "Arguments:   none")
			return nil
		}
		fmt.Fprintln(r.out, "Arguments:")
		for _, p := range props {
			required := ""
			for _, req := range t.InputSchema.Required {
				if req == p {
					required = " (required)"
				}
			}
			schema, _ := json.Marshal(t.InputSchema.Properties[p])
			fmt.Fprintf(r.out, "  %s%s: %s\n", p, required, schema)
		}
		return nil
	}
	return fmt.Errorf("tool not found: %s", name)
}

func (r *REPL) handleCallTool(ctx context.Context, rest string) error {
	name, argStr, _ := strings.Cut(rest, " ")
	args, err := parseArgs(strings.TrimSpace(argStr))
	if err != nil {
		fmt.Fprintf(r.out, "Example: call %s {\"param1\": \"value1\", \"param2\": 123}\n", name)
		return err
	}

	result, err := r.backend.CallTool(ctx, r.serverID, name, args)
	if err != nil {
		return fmt.Errorf("tool execution failed: %w", err)
	}
	if err := r.printer.PrintCallResult(result); err != nil && !result.IsError {
		return err
	}
	return nil
}

func (r *REPL) handleRequest(ctx context.Context, rest string) error {
	method, paramStr, _ := strings.Cut(rest, " ")
	var params any
	if paramStr = strings.TrimSpace(paramStr); paramStr != "" {
		if err := json.Unmarshal([]byte(paramStr), &params); err != nil {
			return fmt.Errorf("invalid JSON params: %w", err)
		}
	}

	raw, err := r.backend.Request(ctx, r.serverID, method, params)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Fprintln(r.out, string(raw))
		return nil
	}
	data, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Fprintln(r.out, string(data))
	return nil
}

// handleNotifications toggles notification display
func (r *REPL) handleNotifications(setting string) error {
	var on bool
	switch strings.ToLower(setting) {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("invalid setting: %q. Use 'on' or 'off'", setting)
	}

	r.mu.Lock()
	r.notifications = on
	r.mu.Unlock()
	if on {
		fmt.Fprintln(r.out, "Notifications enabled")
	} else {
		fmt.Fprintln(r.out, "Notifications disabled")
	}
	return nil
}

// parseArgs accepts a JSON object or whitespace-separated key=value pairs.
func parseArgs(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		return cli.ParseArguments([]string{s})
	}
	return cli.ParseArguments(strings.Fields(s))
}
