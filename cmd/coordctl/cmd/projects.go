package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	"github.com/spf13/cobra"
)

func newProjectsCmd(opts *options) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect stored projects",
	}

	var (
		userID    string
		tool      string
		templates bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's projects for a tool",
		Long: `List a user's projects, most recently updated first.

Example:
  coordctl projects list --user u1 --tool cardgenerator --templates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			collection := ""
			for _, p := range cfg.Projects {
				if p.Tool == tool {
					collection = p.Collection
				}
			}
			if collection == "" {
				return fmt.Errorf("tool %q has no project store", tool)
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := project.NewDocumentRepository(sqlite.NewDocumentRepository(db), collection)
			svc := project.NewService(tool, repo, nil, nil, project.WithStoreTimeout(cfg.Store.Timeout))
			result, err := svc.List(context.Background(), project.Caller{UserID: userID}, project.ListOptions{IncludeTemplates: templates})
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if result.Total == 0 {
				fmt.Fprintln(out, "No projects found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-30s  %-6s  %s\n", "ID", "NAME", "CARDS", "UPDATED")
			fmt.Fprintln(out, strings.Repeat("-", 92))
			for _, p := range result.Projects {
				fmt.Fprintf(out, "%-36s  %-30s  %-6d  %s\n",
					p.ID,
					truncate(p.Name, 30),
					p.CardCount,
					time.UnixMilli(p.UpdatedAt).UTC().Format("2006-01-02 15:04"),
				)
			}
			fmt.Fprintf(out, "\nTotal: %d project(s)\n", result.Total)
			return nil
		},
	}
	listCmd.Flags().StringVar(&userID, "user", "", "owner user ID")
	listCmd.Flags().StringVar(&tool, "tool", "cardgenerator", "tool whose projects to list")
	listCmd.Flags().BoolVar(&templates, "templates", false, "include templates")
	_ = listCmd.MarkFlagRequired("user")

	projectsCmd.AddCommand(listCmd)
	return projectsCmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-2]) + ".."
}
