package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func joinIDs(ids []domain.UserID) string {
	return strings.Join(lo.Map(ids, func(id domain.UserID, _ int) string {
		return strconv.FormatInt(int64(id), 10)
	}), ",")
}

func newConversationsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			conversations, err := api.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), conversations)
			}
			rows := lo.Map(conversations, func(c domain.Conversation, _ int) []string {
				return []string{c.ID, string(c.Kind), c.Name, joinIDs(c.ParticipantIDs), joinIDs(c.Pending)}
			})
			printTable(cmd.OutOrStdout(), []string{"id", "type", "name", "participants", "pending"}, rows)
			return nil
		},
	}

	var (
		with    []int64
		isGroup bool
		name    string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Start a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			c, err := api.CreateConversation(cmd.Context(), domain.CreateConversationRequest{
				ParticipantIDs: lo.Map(with, func(id int64, _ int) domain.UserID { return domain.UserID(id) }),
				IsGroup:        isGroup,
				Name:           name,
			})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), c)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return err
		},
	}
	create.Flags().Int64SliceVar(&with, "with", nil, "Participant user ids")
	create.Flags().BoolVar(&isGroup, "group", false, "Create a group conversation")
	create.Flags().StringVar(&name, "name", "", "Group name")

	cmd.AddCommand(create)
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.session(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()

			conv, err := session.API.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if err := session.Chat.Select(ctx, conv); err != nil {
				return err
			}
			msg, err := session.Chat.Send(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), msg)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return err
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <conversation-id>",
		Short: "Print a conversation and follow new messages and notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := opts.session(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()

			out := cmd.OutOrStdout()
			session.Chat.OnMessage(func(e client.Entry) { printEntry(out, e) })
			session.Inbox.OnNotification(func(n client.NotificationView) {
				_, _ = fmt.Fprintf(out, "* %s: %s (%d unread)\n", n.Title, n.Content, n.Unread)
			})

			conv, err := session.API.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if err := session.Chat.Select(ctx, conv); err != nil {
				return err
			}
			for _, e := range session.Chat.Store().Entries() {
				printEntry(out, e)
			}

			select {
			case <-ctx.Done():
			case <-session.Done():
				return fmt.Errorf("connection lost")
			}
			return nil
		},
	}
}

func printEntry(w io.Writer, e client.Entry) {
	_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", e.Message.CreatedAt.Local().Format(time.TimeOnly), e.Sender.DisplayName, e.Message.Content)
}
