package cli

import (
	"fmt"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(opts *options) *cobra.Command {
	var readAll bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			if readAll {
				if err := api.MarkAllNotificationsRead(cmd.Context()); err != nil {
					return err
				}
			}

			list, err := api.ListNotifications(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := lo.Map(list, func(n domain.Notification, _ int) []string {
				return []string{n.ID, string(n.Type), n.Title, n.Content, lo.Ternary(n.IsRead, "", "*")}
			})
			printTable(cmd.OutOrStdout(), []string{"id", "type", "title", "content", "unread"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&readAll, "read-all", false, "Mark every notification read first")

	cmd.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			return api.MarkNotificationRead(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			if err := api.DeleteNotification(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "notification %s deleted\n", args[0])
			return err
		},
	})

	return cmd
}
