package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("livepaste-server failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "livepaste-server",
		Short:         "Serve live collaborative snippets over HTTP and WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults and environment only when empty)")

	root.AddCommand(newServeCmd(&configPath), newPurgeCmd(&configPath))
	return root
}
