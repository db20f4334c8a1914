package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spoilshield/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "spoilshieldd.log")
			stdout := cmd.OutOrStdout()

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if follow {
				var cancel context.CancelFunc
				runCtx, cancel = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
			}

			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			for _, line := range result.Lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err := logs.Tail(runCtx, path, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   2 * time.Second,
				})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("follow log: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(stdout, line)
				}
				offset = result.Offset

				select {
				case <-runCtx.Done():
					return nil
				default:
				}
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep the log open and stream new lines")
	return cmd
}
