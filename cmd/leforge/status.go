// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package main

import (
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/LeForgeio/leforge-sub001/internal/store"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry database and migration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	ctx := cmd.Context()

	pool, err := store.Connect(ctx, databaseURL, 10*time.Second)
	if err != nil {
		return err
	}
	defer pool.Close()
	cmd.Println("database: reachable")

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrator.Close() //nolint:errcheck // teardown path
	}()

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("migrations: version %d, dirty=%v\n", version, dirty)

	instances, err := store.NewPostgresPluginStore(pool).ListPlugins(ctx)
	if err != nil {
		return err
	}

	counts := make(map[store.Status]int)
	for _, inst := range instances {
		counts[inst.Status]++
	}
	cmd.Printf("hooks: %d total (running=%d, stopped=%d, error=%d)\n",
		len(instances),
		counts[store.StatusRunning],
		counts[store.StatusStopped],
		counts[store.StatusError])
	return nil
}
