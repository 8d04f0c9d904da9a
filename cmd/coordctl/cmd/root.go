// Package cmd contains the coordctl commands.
package cmd

import (
	"fmt"

	"github.com/dungeonmind/coordinator/internal/config"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	"github.com/spf13/cobra"
)

// options holds the global flags.
type options struct {
	dbPath string
	output string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "coordctl",
		Short: "DungeonMind coordinator administration",
		Long: `coordctl manages coordinator credentials and inspects stored projects.

Configuration is read the same way as the server: DUNGEONMIND_CONFIG_PATH
and DUNGEONMIND_* environment variables.

Examples:
  # Issue a one-day bearer token
  coordctl token issue --user u1 --ttl 24h

  # Register an API key
  coordctl apikey add --user u1

  # List a user's card generator projects
  coordctl projects list --user u1 --tool cardgenerator`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table, json)")

	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newAPIKeyCmd(opts))
	root.AddCommand(newProjectsCmd(opts))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DB.Path = opts.dbPath
	}
	return cfg, nil
}

func openDB(cfg config.Config) (*sqlite.DB, error) {
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
