package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvushealth/engine/internal/config"
	"github.com/corvushealth/engine/internal/rpc"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Control channels on a running daemon",
}

func init() {
	channelCmd.AddCommand(
		channelSubcommand("start", "Start a channel", func(c *rpc.Client, ctx context.Context, id string) error {
			return c.Start(ctx, id)
		}),
		channelSubcommand("stop", "Stop a channel", func(c *rpc.Client, ctx context.Context, id string) error {
			return c.Stop(ctx, id)
		}),
		channelSubcommand("reload", "Reload a channel from its on-disk definition", func(c *rpc.Client, ctx context.Context, id string) error {
			return c.Reload(ctx, id)
		}),
		channelSubcommand("deploy", "Deploy (but do not start) a channel", func(c *rpc.Client, ctx context.Context, id string) error {
			return c.Deploy(ctx, id)
		}),
		statusCmd(),
	)
}

// channelSubcommand builds a `channel <verb> <channel-id>` command that
// dials the control plane, calls action, and reports the result — every
// lifecycle verb but Status follows this same request/response shape.
func channelSubcommand(use, short string, action func(c *rpc.Client, ctx context.Context, channelID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client := dialControlPlane()
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := action(client, ctx, args[0]); err != nil {
				exitWithError(fmt.Sprintf("%s %s", use, args[0]), err)
			}
			fmt.Printf("%s: %s ok\n", args[0], use)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <channel-id>",
		Short: "Show a channel's current lifecycle state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client := dialControlPlane()
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			state, err := client.Status(ctx, args[0])
			if err != nil {
				exitWithError(fmt.Sprintf("status %s", args[0]), err)
			}
			fmt.Println(state)
		},
	}
}

func dialControlPlane() *rpc.Client {
	target := socketPath
	if target == "" {
		target = rpc.DefaultSocketPath
		if cfg, err := config.Load(configFile); err == nil && cfg.Control.Socket != "" {
			target = cfg.Control.Socket
		}
	}
	client, err := rpc.Dial("unix://" + target)
	if err != nil {
		exitWithError("connect to control plane", err)
	}
	return client
}
