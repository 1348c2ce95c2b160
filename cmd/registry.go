package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"toolhost/internal/cli"
	"toolhost/internal/color"
	"toolhost/internal/config"
	"toolhost/internal/mcpserver"
	"toolhost/internal/registry"
	"toolhost/pkg/logging"
)

// loadConfig reads the layered configuration once per process.
var loadConfig = sync.OnceValues(config.LoadConfig)

// registryProvider hands every command the same Registry.
var registryProvider = registry.NewProvider(buildRegistry)

func buildRegistry(ctx context.Context) (*registry.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if rootCmd.Version != "" && cfg.Client.Version == config.GetDefaultConfig().Client.Version {
		cfg.Client.Version = rootCmd.Version
	}

	path := rootServersFile
	if path == "" {
		path, err = config.DefaultServersPath()
		if err != nil {
			return nil, fmt.Errorf("failed to determine servers file: %w", err)
		}
	}
	logging.Debug("CLI", "Using server definitions from %s", path)
	return registry.New(cfg, config.NewServerStore(path), nil), nil
}

// openRegistry returns the shared registry and a function that stops every
// server it started.
func openRegistry(cmd *cobra.Command) (*registry.Registry, func(), error) {
	reg, err := registryProvider.Get(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), registry.DefaultStopTimeout)
		defer cancel()
		if err := reg.Close(ctx); err != nil {
			logging.Warn("CLI", "Failed to stop servers cleanly: %v", err)
		}
	}
	return reg, closeFn, nil
}

// ensureRunning starts id unless it is already running.
func ensureRunning(ctx context.Context, reg *registry.Registry, id string) error {
	st, err := reg.Status(id)
	if err != nil {
		return err
	}
	if st.Status == string(mcpserver.StatusRunning) {
		return nil
	}
	res, err := reg.Start(ctx, id)
	if err != nil {
		return err
	}
	logging.Info("CLI", "Started %s (%s %s, protocol %s)", id, res.ServerInfo.Name, res.ServerInfo.Version, res.ProtocolVersion)
	return nil
}

// outputFlags are the -o/-q flags shared by commands that print results.
type outputFlags struct {
	format string
	quiet  bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Suppress non-essential output")
}

func (f *outputFlags) printer(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseOutputFormat(f.format)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cli.PrinterOptions{
		Format:  format,
		Quiet:   f.quiet,
		NoColor: rootNoColor || color.Disabled(),
	}, cmd.OutOrStdout()), nil
}
