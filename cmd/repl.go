package cmd

import (
	"github.com/spf13/cobra"

	"toolhost/internal/repl"
)

// replCmd opens the interactive console
var replCmd = &cobra.Command{
	Use:   "repl <id>",
	Short: "Open an interactive console for one server",
	Long: `Starts the server if needed and opens an interactive console with
command history and tab completion for tool names.

Inside the console:
  tools                 List available tools
  describe <tool>       Show a tool's input schema
  call <tool> [args]    Call a tool (key=value pairs or a JSON object)
  request <method> ...  Send a raw request
  logs [n]              Show recent diagnostic output
  notifications on|off  Toggle printing of server notifications
  exit                  Leave the console`,
	Args: cobra.ExactArgs(1),
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runREPL(cmd *cobra.Command, args []string) error {
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id := args[0]
	if err := ensureRunning(cmd.Context(), reg, id); err != nil {
		return err
	}

	console := repl.New(reg, id, cmd.OutOrStdout())
	if err := reg.SetObserver(id, console); err != nil {
		return err
	}
	defer reg.SetObserver(id, nil)

	return console.Run(cmd.Context())
}
