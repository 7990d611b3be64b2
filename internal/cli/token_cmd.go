package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_ACCESS_SECRET")
			}
			if secret == "" {
				return errors.New("no signing secret: pass --secret or set JWT_ACCESS_SECRET")
			}
			if userID <= 0 {
				return errors.New("--user must be a positive id")
			}

			token, err := auth.IssueToken(secret, domain.UserID(userID), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "User id to issue the token for")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the local user directory",
	}

	var (
		dbPath string
		user   domain.User
		id     int64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or update a directory record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id <= 0 || user.Username == "" {
				return errors.New("--id and --name are required")
			}
			if !cmd.Flags().Changed("db") {
				if v := os.Getenv("DATABASE_PATH"); v != "" {
					dbPath = v
				}
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			user.ID = domain.UserID(id)
			if err := st.UpsertUser(context.Background(), user); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user %d saved\n", id)
			return err
		},
	}
	add.Flags().StringVar(&dbPath, "db", "relaychat.db", "Database path")
	add.Flags().Int64Var(&id, "id", 0, "User id")
	add.Flags().StringVar(&user.Username, "name", "", "Display name")
	add.Flags().StringVar(&user.Email, "email", "", "Email address")

	cmd.AddCommand(add)
	return cmd
}
