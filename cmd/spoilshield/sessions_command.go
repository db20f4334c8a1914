package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spoilshield/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsSwitchCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDeleteCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var includeUnconfirmed bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionList(includeUnconfirmed)
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(stdout, "No sessions stored")
					return nil
				}

				rows := make([][]string, 0, len(resp.Sessions))
				for _, session := range resp.Sessions {
					rows = append(rows, []string{
						activeMarker(session.Active),
						session.ID,
						session.ShowTitle,
						fmt.Sprintf("S%dE%d", session.Season, session.Episode),
						session.Platform,
						fmt.Sprintf("%d", session.MessageCount),
						formatLastMessage(session.LastMessageAt),
						yesNo(session.Confirmed),
					})
				}

				table := renderTable(
					[]string{"", "ID", "Show", "Episode", "Platform", "Messages", "Last Message", "Confirmed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&includeUnconfirmed, "all", "a", false, "Include sessions that were never confirmed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit sessions as JSON")
	return cmd
}

func newSessionsSwitchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <session-id>",
		Short: "Activate a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionSwitch(args[0])
				if err != nil {
					return fmt.Errorf("switch session: %w", err)
				}
				session := resp.Session
				fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s (%s S%dE%d)\n",
					session.ID, session.ShowTitle, session.Season, session.Episode)
				return nil
			})
		},
	}
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SessionDelete(args[0]); err != nil {
					return fmt.Errorf("delete session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
				return nil
			})
		},
	}
}

func activeMarker(active bool) string {
	if active {
		return "*"
	}
	return ""
}

func formatLastMessage(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04")
}
