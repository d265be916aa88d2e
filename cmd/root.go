// Package cmd implements the engine CLI using cobra, adapted from the
// teacher's cmd/root.go: a persistent --config/--socket pair, a daemon
// subcommand, and client subcommands that dial the control plane rather
// than touch channel state directly.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	channelDir string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:     "engine",
	Short:   "Channel Runtime — a healthcare message broker and integration engine",
	Version: "0.1.0",
	Long: `engine is a channel-based integration runtime: each channel reads from one
source connector, runs it through a filter/transform pipeline, and fans the
result out to any number of destination connectors, with per-destination
retry queues and crash recovery.

Run "engine daemon" to start the runtime; use the other subcommands to
control channels on an already-running daemon over its gRPC control
plane.`,
}

// Execute adds all child commands to rootCmd and parses os.Args. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/engine/engine.yaml",
		"global configuration file path")
	rootCmd.PersistentFlags().StringVarP(&channelDir, "channel-dir", "d", "/etc/engine/channels",
		"directory of per-channel YAML definitions")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "",
		"control plane Unix socket (defaults to the daemon's configured control.socket)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(channelCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
