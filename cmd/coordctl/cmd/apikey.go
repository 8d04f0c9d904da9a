package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dungeonmind/coordinator/internal/repository"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAPIKeyCmd(opts *options) *cobra.Command {
	apiKeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "API key commands",
	}

	var (
		userID      string
		key         string
		description string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an API key for a user",
		Long: `Register an API key. Only its SHA-256 hash is stored.

A random key is generated and printed when --key is omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if key == "" {
				key = "dm_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			err = sqlite.NewAPIKeyRepository(db).Add(context.Background(), key, userID, description)
			if errors.Is(err, repository.ErrConflict) {
				return errors.New("api key already registered")
			}
			if err != nil {
				return fmt.Errorf("add api key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	addCmd.Flags().StringVar(&userID, "user", "", "user ID the key identifies")
	addCmd.Flags().StringVar(&key, "key", "", "key value (generated when empty)")
	addCmd.Flags().StringVar(&description, "description", "", "free-form note")
	_ = addCmd.MarkFlagRequired("user")

	apiKeyCmd.AddCommand(addCmd)
	return apiKeyCmd
}
