package cmd

import (
	"github.com/spf13/cobra"

	"toolhost/internal/testserver"
)

func newMockServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mock-server",
		Short:  "Run the built-in demo tool server on stdin/stdout",
		Long:   `Runs a small tool server (echo, add, upper, sleep, fail) speaking the protocol on stdin/stdout. Useful for trying toolhost without installing anything: toolhost add demo toolhost mock-server`,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return testserver.ServeStdio("toolhost-mock", rootCmd.Version)
		},
	}
}
