package cmd

import (
	"github.com/spf13/cobra"

	"toolhost/internal/color"
	"toolhost/internal/reporting"
	"toolhost/internal/tui"
	"toolhost/pkg/logging"
)

var (
	watchAutoStart  bool
	watchBufferSize int
	watchTheme      string
)

// watchCmd opens the dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open a terminal dashboard for installed servers",
	Long: `Opens an interactive dashboard listing every installed server with its
state. The selected server's status changes, diagnostic output and protocol
traffic are shown live. Servers can be started, stopped and restarted from
the dashboard; all of them are stopped when it exits.

Press ? for the key bindings.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchAutoStart, "auto-start", true, "Start auto-start servers when the dashboard opens")
	watchCmd.Flags().StringVar(&watchTheme, "theme", "auto", "Color theme (auto, dark, light)")
	watchCmd.Flags().IntVar(&watchBufferSize, "buffer", 1024, "Number of undelivered events to buffer before dropping")
}

func runWatch(cmd *cobra.Command, args []string) error {
	theme, err := color.ParseTheme(watchTheme)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(rootLogLevel)
	if err != nil {
		return err
	}
	color.Apply(theme)
	logs := logging.InitForTUI(level)
	defer logging.CloseTUIChannel()

	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	events := reporting.NewChannelObserver(watchBufferSize)
	defer events.Close()
	unsubscribe := reg.Sink().Subscribe(nil, events)
	defer unsubscribe()

	if watchAutoStart {
		go func() {
			if _, err := reg.StartAutoStart(cmd.Context()); err != nil {
				logging.Error("Watch", err, "Failed to start auto-start servers")
			}
		}()
	}

	_, err = tui.NewProgram(reg, events.Events(), logs).Run()
	return err
}
