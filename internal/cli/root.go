// Package cli implements chatctl, a terminal client for relaychat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

const (
	envHost  = "RELAYCHAT_HOST"
	envToken = "RELAYCHAT_TOKEN"
)

type options struct {
	host     string
	token    string
	output   string
	logLevel string
}

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "relaychat command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			// flag > env > default
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv(envHost); v != "" {
					opts.host = v
				}
			}
			if !cmd.Flags().Changed("token") {
				if v := os.Getenv(envToken); v != "" {
					opts.token = v
				}
			}
			return validateOutputFormat(opts.output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.host, "host", "http://localhost:8080", "Server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "Access token")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARN", "Log level")

	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newConversationsCmd(opts))
	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newNotificationsCmd(opts))

	return rootCmd
}

func (o *options) logger() *slog.Logger {
	return logs.GetLoggerFromString(o.logLevel)
}

func (o *options) apiClient() (*client.APIClient, error) {
	if o.token == "" {
		return nil, errors.New("no token: pass --token or set " + envToken)
	}
	return client.NewAPIClient(o.host, o.token, nil), nil
}

func (o *options) session(ctx context.Context) (*client.Session, error) {
	if o.token == "" {
		return nil, errors.New("no token: pass --token or set " + envToken)
	}
	userID, err := auth.SubjectOf(o.token)
	if err != nil {
		return nil, err
	}
	return client.Open(ctx, client.SessionConfig{
		BaseURL: o.host,
		Token:   o.token,
		UserID:  userID,
	}, o.logger())
}
