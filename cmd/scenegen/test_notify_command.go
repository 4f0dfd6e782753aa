package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenegen/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Ask the daemon to send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("test notification: %w", err)
				}
				kind, message := statusWarn, "Notification not sent"
				if resp.Sent {
					kind, message = statusOK, "Test notification sent"
				}
				if resp.Message != "" {
					message = resp.Message
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine("Notify", kind, message, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}
