package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spoilshield/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return fmt.Errorf("fetch status: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := statusError
				if status.Running {
					runningKind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, fmt.Sprintf("pid %d", status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("API", statusInfo, status.APIBind, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Session", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Phase", phaseKind(status.Phase), status.Phase, colorize))
				if status.SessionID != "" {
					show := status.ShowTitle
					if status.Season > 0 && status.Episode > 0 {
						show = fmt.Sprintf("%s S%dE%d", status.ShowTitle, status.Season, status.Episode)
					}
					fmt.Fprintln(stdout, renderStatusLine("Active", statusOK, show, colorize))
					fmt.Fprintln(stdout, renderStatusLine("Session ID", statusInfo, status.SessionID, colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Active", statusWarn, "no active session", colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Stored sessions", statusInfo, fmt.Sprintf("%d", status.SessionCount), colorize))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func phaseKind(phase string) statusKind {
	switch phase {
	case "ready":
		return statusOK
	case "error":
		return statusError
	case "no-show", "needs-episode":
		return statusWarn
	default:
		return statusInfo
	}
}
