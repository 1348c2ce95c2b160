package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"toolhost/internal/cli"
	"toolhost/internal/registry"
)

var (
	startWait     bool
	startOutput   outputFlags
	toolsOutput   outputFlags
	callOutput    outputFlags
	requestOutput outputFlags

	logsDuration time.Duration
	logsTail     int
	logsOutput   outputFlags
)

// startCmd runs the handshake against a server
var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a tool server and show its handshake result",
	Long: `Start a tool server, perform the initialization handshake and print
what the server announced about itself.

The server is stopped again when the command exits. Use --wait to keep
it running and print its events until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

// toolsCmd lists the tools of a server
var toolsCmd = &cobra.Command{
	Use:   "tools <id>",
	Short: "List the tools a server offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runTools,
}

// callCmd calls one tool
var callCmd = &cobra.Command{
	Use:   "call <id> <tool> [key=value...|json]",
	Short: "Call a tool on a server",
	Long: `Call a tool on a server and print its result.

Arguments are given either as a single JSON object or as key=value
pairs. Values that parse as JSON keep their type:

  toolhost call demo add a=2 b=3
  toolhost call demo echo '{"text": "hello"}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCall,
}

// requestCmd sends a raw method
var requestCmd = &cobra.Command{
	Use:   "request <id> <method> [json-params]",
	Short: "Send a raw JSON-RPC request to a server",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runRequest,
}

// logsCmd shows diagnostic output
var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Start a server and show its diagnostic output",
	Long: `Start a server, collect what it writes to stderr and stdout (lines
that are not protocol messages) for the given duration, then print the
newest lines.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(logsCmd)

	startCmd.Flags().BoolVar(&startWait, "wait", false, "Keep the server running and print its events until interrupted")
	startOutput.register(startCmd)
	toolsOutput.register(toolsCmd)
	callOutput.register(callCmd)
	requestOutput.register(requestCmd)

	logsCmd.Flags().DurationVar(&logsDuration, "duration", 2*time.Second, "How long to collect output after the handshake")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 100, "Number of lines to show (0 for all retained lines)")
	logsOutput.register(logsCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	printer, err := startOutput.printer(cmd)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id := args[0]
	res, err := reg.Start(cmd.Context(), id)
	if printer.Format() != cli.OutputFormatTable {
		if perr := printer.Print(registry.Wrap(res, err)); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if printer.Format() == cli.OutputFormatTable {
		if err := printer.Print(map[string]any{
			"server":          res.ServerInfo.Name,
			"version":         res.ServerInfo.Version,
			"protocolVersion": res.ProtocolVersion,
			"capabilities":    res.Capabilities,
			"instructions":    res.Instructions,
		}); err != nil {
			return err
		}
	}

	if !startWait {
		return nil
	}
	printer.Message("%s is running, press Ctrl+C to stop", id)
	unsubscribe := reg.Sink().Subscribe(nil, consoleObserver())
	defer unsubscribe()
	<-cmd.Context().Done()
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	printer, err := toolsOutput.printer(cmd)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id := args[0]
	if err := ensureRunning(cmd.Context(), reg, id); err != nil {
		return err
	}
	tools, err := reg.ListTools(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printer.PrintTools(tools)
}

func runCall(cmd *cobra.Command, args []string) error {
	printer, err := callOutput.printer(cmd)
	if err != nil {
		return err
	}
	toolArgs, err := cli.ParseArguments(args[2:])
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id, tool := args[0], args[1]
	if err := ensureRunning(cmd.Context(), reg, id); err != nil {
		return err
	}
	result, err := reg.CallTool(cmd.Context(), id, tool, toolArgs)
	if err != nil {
		return err
	}
	return printer.PrintCallResult(result)
}

func runRequest(cmd *cobra.Command, args []string) error {
	printer, err := requestOutput.printer(cmd)
	if err != nil {
		return err
	}
	var params any
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
			return fmt.Errorf("params must be valid JSON: %w", err)
		}
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id, method := args[0], args[1]
	if err := ensureRunning(cmd.Context(), reg, id); err != nil {
		return err
	}
	raw, err := reg.Request(cmd.Context(), id, method, params)
	if perr := printer.Print(registry.Wrap(raw, err)); perr != nil {
		return perr
	}
	return err
}

func runLogs(cmd *cobra.Command, args []string) error {
	printer, err := logsOutput.printer(cmd)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id := args[0]
	startErr := ensureRunning(cmd.Context(), reg, id)
	if startErr == nil && logsDuration > 0 {
		select {
		case <-time.After(logsDuration):
		case <-cmd.Context().Done():
		}
	}
	if err := printer.PrintLogs(reg.Logs(id, logsTail)); err != nil {
		return err
	}
	return startErr
}
