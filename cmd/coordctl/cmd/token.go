package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *options) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token commands",
	}

	var (
		userID string
		ttl    time.Duration
		secret string
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token for a user",
		Long: `Issue an HS256 bearer token accepted by the coordinator.

The signing secret comes from --secret or DUNGEONMIND_JWT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return errors.New("no signing secret: set --secret or DUNGEONMIND_JWT_SECRET")
			}

			token, err := auth.NewJWTResolver([]byte(secret), cfg.Auth.JWTIssuer).IssueToken(userID, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&userID, "user", "", "user ID the token identifies")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	issueCmd.Flags().StringVar(&secret, "secret", "", "signing secret (overrides config)")
	_ = issueCmd.MarkFlagRequired("user")

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}
