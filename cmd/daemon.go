package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvushealth/engine/internal/daemon"
)

var pidFile string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the engine daemon in the foreground",
	Long: `Run the engine daemon process in the foreground.

The daemon loads the global configuration, opens the store, deploys and
starts every enabled channel under --channel-dir, and serves the gRPC
control plane and Prometheus metrics until it receives SIGTERM/SIGINT, or
reloads its configuration on SIGHUP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "/var/run/engined.pid", "PID file path")
}

func runDaemon() error {
	d, err := daemon.New(configFile, channelDir, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("construct daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	return d.Run()
}
