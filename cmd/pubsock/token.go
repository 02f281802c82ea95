package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pubsock/internal/chat"
)

func tokenCmd() *cobra.Command {
	var (
		id     string
		name   string
		ttl    time.Duration
		secret string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a chat member token",
		Long: `Issue a signed token for a chat member.

Send it as the "token" cookie on the WebSocket upgrade request.

Examples:
  pubsock token --id 1 --name Mark
  pubsock token --id 2 --name Bob --ttl 1h --secret s3cret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("secret") {
				cfg.TokenSecret = secret
			}
			if cfg.TokenSecret == "" {
				return errors.New("token secret is required (set PUBSOCK_TOKEN_SECRET or --secret)")
			}

			auth, err := chat.NewAuthenticator([]byte(cfg.TokenSecret))
			if err != nil {
				return err
			}
			token, err := auth.Issue(chat.Member{ID: id, Name: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Member identifier")
	cmd.Flags().StringVar(&name, "name", "", "Member display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default from PUBSOCK_TOKEN_SECRET)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
