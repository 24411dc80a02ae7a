package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/observer"
	"github.com/marcus/hivemind/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running daemon",
	Long: `Open a terminal view of the colony fed by the daemon's observer stream.

The daemon must be running with observer.addr set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			addr = cfg.Observer.Addr
		}
		if addr == "" {
			return fmt.Errorf("no observer address (set observer.addr or pass --addr)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := observer.Dial(ctx, addr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		return ui.New(client).Run()
	},
}

func init() {
	watchCmd.Flags().String("addr", "", "Observer address (host:port or ws:// URL)")
	rootCmd.AddCommand(watchCmd)
}
