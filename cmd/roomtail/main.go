// Package main tails the Redis mirror of one room and prints each event as a JSON line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vimeet/server/config"
	"github.com/vimeet/server/internal/realtime"
	"github.com/vimeet/server/pkg/redis"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "roomtail: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "roomtail <room>",
		Short: "Print live events of a meeting room",
		Long: `roomtail subscribes to the Redis channel the room server mirrors
events to (REDIS_ADDR must be set on the server) and prints one JSON line
per event until interrupted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Redis.Addr = addr
			}
			if !cfg.Redis.Enabled() {
				return fmt.Errorf("no redis address: set REDIS_ADDR or --redis")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rdb, err := redis.NewClient(ctx, cfg.Redis, zap.NewNop())
			if err != nil {
				return err
			}
			defer rdb.Close()

			out := cmd.OutOrStdout()
			return realtime.SubscribeRoom(ctx, rdb.Client, args[0], func(ev realtime.MirroredEvent) {
				printEvent(out, ev)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "redis", "", "redis address (overrides REDIS_ADDR)")
	return cmd
}

func printEvent(w io.Writer, ev realtime.MirroredEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintln(w, string(line))
}
