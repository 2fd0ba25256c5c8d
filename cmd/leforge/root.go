// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the LeForge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leforge",
		Short: "LeForge - workflow-automation hook platform",
		Long: `LeForge runs ForgeHooks: small units of server-side logic invoked
by workflow-automation tools. Embedded hooks execute in-process inside
a capability-restricted sandbox; container hooks are managed by the
separate orchestrator.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHooksCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
