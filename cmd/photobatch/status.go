package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/photo-batch-client/pkg/activity"
)

func newStatusCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the network activity mirrored to Redis by other photobatch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			if !cfg.UsesRedis() {
				return errors.New("status requires --redis-addr")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
			defer client.Close()

			state, err := activity.GetState(ctx, client)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if state.LastChange.IsZero() {
				fmt.Fprintln(out, "no activity mirrored yet")
			} else {
				fmt.Fprintf(out, "in_flight=%d busy=%t last_signal=%s idle_for=%s\n",
					state.InFlight, state.Busy, state.LastSignal, state.IdleFor().Round(time.Millisecond))
			}

			if !follow {
				return nil
			}

			signals, err := activity.Listen(ctx, client)
			if err != nil {
				return err
			}
			for s := range signals {
				fmt.Fprintln(out, s)
			}
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing begin/end signals until interrupted")
	return cmd
}
