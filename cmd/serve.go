package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"toolhost/internal/eventstream"
	"toolhost/internal/mcpserver"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

var (
	serveEvents     bool
	serveEventsAddr string
	serveOutput     outputFlags
)

// serveCmd defines the serve command structure.
// It keeps the auto-start servers running until the process is interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start all auto-start servers and keep them running",
	Long: `Starts every installed server flagged auto-start, prints a summary and
then logs every status change, diagnostic line and protocol message until
interrupted with Ctrl+C or SIGTERM. All servers are stopped on exit.

With --events (or events.enabled in the configuration) the same events are
streamed as server-sent events on http://<addr>/events. Clients may filter
with ?server=<id> and ?type=status,log,message,initialized.

Configuration:
  toolhost loads configuration from ~/.config/toolhost/config.yaml and then
  .toolhost/config.yaml in the current directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveEvents, "events", false, "Expose the event stream over HTTP")
	serveCmd.Flags().StringVar(&serveEventsAddr, "events-addr", "", "Listen address for the event stream (overrides events.addr)")
	serveOutput.register(serveCmd)
}

func consoleObserver() reporting.Observer {
	return reporting.ConsoleObserver{Verbose: rootLogLevel == "debug"}
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	printer, err := serveOutput.printer(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	defer reg.Sink().Subscribe(nil, consoleObserver())()

	eventsCfg := cfg.Events
	if serveEventsAddr != "" {
		eventsCfg.Addr = serveEventsAddr
	}
	if serveEvents || eventsCfg.Enabled {
		hub := eventstream.NewHub(eventsCfg.BufferSize)
		defer reg.Sink().Subscribe(nil, hub)()

		srv := eventstream.NewServer(eventsCfg, hub)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start event stream: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logging.Warn("Serve", "Event stream did not shut down cleanly: %v", err)
			}
		}()
		printer.Message("Streaming events on http://%s%s", srv.Addr(), eventstream.EventsPath)
	}

	failures, err := reg.StartAutoStart(ctx)
	if err != nil {
		return err
	}
	servers, err := reg.List()
	if err != nil {
		return err
	}
	running := 0
	for _, s := range servers {
		if s.Status == string(mcpserver.StatusRunning) {
			running++
		}
	}
	if err := printer.PrintServers(servers); err != nil {
		return err
	}
	if len(failures) > 0 {
		logging.Warn("Serve", "%d auto-start server(s) failed to start", len(failures))
	}
	printer.Message("%d of %d server(s) running, press Ctrl+C to stop", running, len(servers))

	<-ctx.Done()
	logging.Info("Serve", "Shutting down")
	return nil
}
