// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/LeForgeio/leforge-sub001/internal/store"
)

// NewHooksCmd creates the hooks subcommand group.
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect installed hooks",
	}
	cmd.AddCommand(newHooksListCmd())
	return cmd
}

func newHooksListCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed hooks from the registry database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			databaseURL := os.Getenv("DATABASE_URL")
			if databaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
			}

			var g glob.Glob
			if filter != "" {
				var err error
				g, err = glob.Compile(filter)
				if err != nil {
					return oops.Code("CONFIG_INVALID").With("filter", filter).Hint("invalid glob pattern").Wrap(err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := store.Connect(ctx, databaseURL, 10*time.Second)
			if err != nil {
				return err
			}
			defer pool.Close()

			instances, err := store.NewPostgresPluginStore(pool).ListPlugins(ctx)
			if err != nil {
				return err
			}

			for _, inst := range instances {
				if g != nil && !g.Match(inst.Name) {
					continue
				}
				cmd.Printf("%-32s %-10s %-10s %s\n", inst.Name, inst.Runtime, inst.Status, inst.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "glob pattern to filter hook names (e.g. 'text-*')")
	return cmd
}
