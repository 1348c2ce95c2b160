package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolhost/internal/cli"
	"toolhost/internal/config"
)

var (
	addEnv         []string
	addWorkingDir  string
	addAutoStart   bool
	addDescription string

	listOutput   outputFlags
	statusOutput outputFlags
)

// addCmd installs a server definition
var addCmd = &cobra.Command{
	Use:   "add <id> <command> [args...]",
	Short: "Install a tool server definition",
	Long: `Install a tool server definition under the given id.

Everything after the command is passed to the server unchanged, so
server flags do not need quoting:

  toolhost add files npx -y @modelcontextprotocol/server-filesystem /tmp

Environment values may reference the host environment with ${VAR} or
${VAR:-default}; they are expanded each time the server is launched.
An existing definition with the same id is replaced.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAdd,
}

// removeCmd uninstalls a server definition
var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a tool server definition",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

// listCmd lists installed servers
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed tool servers",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

// statusCmd shows one server
var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the definition and state of a tool server",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)

	// Flags after <command> belong to the server.
	addCmd.Flags().SetInterspersed(false)
	addCmd.Flags().StringArrayVarP(&addEnv, "env", "e", nil, "Environment variable for the server (KEY=VALUE, repeatable)")
	addCmd.Flags().StringVar(&addWorkingDir, "workdir", "", "Working directory for the server process")
	addCmd.Flags().BoolVar(&addAutoStart, "auto-start", false, "Start the server whenever 'toolhost serve' starts")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Free-form description")

	listOutput.register(listCmd)
	statusOutput.register(statusCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	env, err := cli.ParseEnv(addEnv)
	if err != nil {
		return err
	}
	cfg := config.ServerConfig{
		ID:          args[0],
		Description: addDescription,
		Command:     args[1],
		Args:        args[2:],
		Env:         env,
		WorkingDir:  addWorkingDir,
		AutoStart:   addAutoStart,
	}

	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := reg.Install(cmd.Context(), cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", cfg.ID)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := reg.Uninstall(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	printer, err := listOutput.printer(cmd)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	servers, err := reg.List()
	if err != nil {
		return err
	}
	return printer.PrintServers(servers)
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := statusOutput.printer(cmd)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := reg.Status(args[0])
	if err != nil {
		return err
	}
	return printer.Print(st)
}
