package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spoilshield/internal/ipc"
)

func newRedetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redetect",
		Short: "Ask the page to rerun show detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Redetect()
				if err != nil {
					return fmt.Errorf("request redetect: %w", err)
				}
				if resp.Requested {
					fmt.Fprintln(cmd.OutOrStdout(), "Redetect requested")
				}
				return nil
			})
		},
	}
}
