// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/LeForgeio/leforge-sub001/internal/config"
	"github.com/LeForgeio/leforge-sub001/internal/hook"
	"github.com/LeForgeio/leforge-sub001/internal/hook/sandbox"
	"github.com/LeForgeio/leforge-sub001/internal/logging"
	"github.com/LeForgeio/leforge-sub001/internal/observability"
	"github.com/LeForgeio/leforge-sub001/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the embedded hook server",
		Long: `Start the hook server: connect to the registry database, discover
and load embedded hooks from the hooks directory, and serve
observability endpoints.`,
		RunE: runServe,
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	cmd.Flags().String("hooks-dir", "hooks", "directory to discover hooks in")
	cmd.Flags().Duration("invoke-timeout", sandbox.DefaultTimeout, "per-invocation timeout")
	cmd.Flags().Int("max-invocations-per-minute", hook.DefaultMaxInvocationsPerMinute, "per-hook invocation ceiling (0 disables)")
	cmd.Flags().String("observability-addr", "127.0.0.1:9100", "metrics/health listen address")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("leforge", version, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.PluginStore
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL, 30*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = store.NewPostgresPluginStore(pool)
	} else {
		// No database configured: instance records live only in memory.
		st = store.NewMemoryPluginStore()
	}

	var ready atomic.Bool
	obs := observability.NewServer(cfg.ObservabilityAddr, ready.Load)
	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Stop(shutdownCtx) //nolint:errcheck // teardown path
	}()

	host := sandbox.NewHost(sandbox.WithTimeout(cfg.InvokeTimeout))
	engine := hook.NewEngine(host, st,
		hook.WithRateLimiter(hook.NewRateLimiter(cfg.MaxInvocationsPerMinute)),
		hook.WithMetrics(obs.Metrics()),
	)

	if err := engine.InstallAll(ctx, cfg.HooksDir); err != nil {
		return oops.In("serve").With("hooks_dir", cfg.HooksDir).Wrap(err)
	}
	ready.Store(true)

	cmd.Println("leforge serving; press Ctrl-C to stop")

	select {
	case <-ctx.Done():
	case err := <-obsErrCh:
		if err != nil {
			return oops.In("serve").Hint("observability server failed").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return engine.Shutdown(shutdownCtx)
}
