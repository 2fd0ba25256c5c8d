// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LeForgeio/leforge-sub001/internal/hook"
	"github.com/LeForgeio/leforge-sub001/internal/hook/sandbox"
	"github.com/LeForgeio/leforge-sub001/internal/store"
)

const echoManifestYAML = `
name: echo
version: 1.0.0
runtime: embedded
embedded:
  entrypoint: main.lua
  exports:
    - echo
    - greet
`

const echoSourceLua = `
exports.echo = function(input, ctx)
  return input
end

exports.greet = function(input, ctx)
  local name = "world"
  if ctx and ctx.config and ctx.config.name then
    name = ctx.config.name
  end
  return "hello " .. name
end
`

// setupRegistryDatabase starts a PostgreSQL container and applies the
// schema migrations, returning a connected store.
func setupRegistryDatabase() (*store.PostgresPluginStore, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("leforge_test"),
		postgres.WithUsername("leforge"),
		postgres.WithPassword("leforge"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, connStr, 30*time.Second)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	_ = migrator.Close()

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return store.NewPostgresPluginStore(pool), cleanup, nil
}

var _ = Describe("Hook Engine", func() {
	var (
		repo    *store.PostgresPluginStore
		cleanup func()
		engine  *hook.Engine
	)

	BeforeEach(func() {
		var err error
		repo, cleanup, err = setupRegistryDatabase()
		Expect(err).NotTo(HaveOccurred())

		engine = hook.NewEngine(sandbox.NewHost(), repo)
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		cleanup()
	})

	Describe("Install and invoke", func() {
		It("installs a hook, persists it, and invokes its exports", func() {
			ctx := context.Background()

			m, err := hook.ParseManifest([]byte(echoManifestYAML))
			Expect(err).NotTo(HaveOccurred())

			inst, err := engine.InstallPlugin(ctx, m, echoSourceLua, map[string]any{"name": "forge"})
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Status).To(Equal(store.StatusRunning))

			stored, err := repo.GetPlugin(ctx, "echo")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(store.StatusRunning))
			Expect(stored.Source).To(Equal(echoSourceLua))

			res := engine.Invoke(ctx, "echo", "echo", "ping", nil)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result).To(Equal("ping"))

			// Stored config flows into the execution context
			res = engine.Invoke(ctx, "echo", "greet", nil, nil)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result).To(Equal("hello forge"))
		})

		It("persists an error status when the source does not compile", func() {
			ctx := context.Background()

			m, err := hook.ParseManifest([]byte(echoManifestYAML))
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.InstallPlugin(ctx, m, `this is not lua (`, nil)
			Expect(err).To(HaveOccurred())

			stored, storeErr := repo.GetPlugin(ctx, "echo")
			Expect(storeErr).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(store.StatusError))
			Expect(stored.Error).NotTo(BeEmpty())
		})
	})

	Describe("Lifecycle across process restarts", func() {
		It("restarts a hook from its persisted record with a fresh engine", func() {
			ctx := context.Background()

			m, err := hook.ParseManifest([]byte(echoManifestYAML))
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.InstallPlugin(ctx, m, echoSourceLua, nil)
			Expect(err).NotTo(HaveOccurred())

			// Simulate a process restart: tear down the first engine,
			// bring up a second one over the same registry.
			Expect(engine.Shutdown(ctx)).To(Succeed())
			engine = hook.NewEngine(sandbox.NewHost(), repo)
			Expect(engine.IsLoaded("echo")).To(BeFalse())

			Expect(engine.StartPlugin(ctx, "echo")).To(Succeed())
			Expect(engine.IsLoaded("echo")).To(BeTrue())

			res := engine.Invoke(ctx, "echo", "echo", "back", nil)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result).To(Equal("back"))
		})

		It("stops a hook and rejects invocations until it is started again", func() {
			ctx := context.Background()

			m, err := hook.ParseManifest([]byte(echoManifestYAML))
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.InstallPlugin(ctx, m, echoSourceLua, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.StopPlugin(ctx, "echo")).To(Succeed())

			stored, storeErr := repo.GetPlugin(ctx, "echo")
			Expect(storeErr).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(store.StatusStopped))

			res := engine.Invoke(ctx, "echo", "echo", "ping", nil)
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(ContainSubstring("not loaded"))

			Expect(engine.StartPlugin(ctx, "echo")).To(Succeed())
			res = engine.Invoke(ctx, "echo", "echo", "ping", nil)
			Expect(res.Success).To(BeTrue())
		})
	})

	Describe("Rate limiting", func() {
		It("rejects invocations past the per-hook ceiling", func() {
			ctx := context.Background()

			limited := hook.NewEngine(sandbox.NewHost(), repo,
				hook.WithRateLimiter(hook.NewRateLimiter(2)))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = limited.Shutdown(shutdownCtx)
			}()

			m, err := hook.ParseManifest([]byte(echoManifestYAML))
			Expect(err).NotTo(HaveOccurred())
			_, err = limited.InstallPlugin(ctx, m, echoSourceLua, nil)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 2; i++ {
				res := limited.Invoke(ctx, "echo", "echo", "ping", nil)
				Expect(res.Success).To(BeTrue(), "invocation %d should be allowed", i+1)
			}

			res := limited.Invoke(ctx, "echo", "echo", "ping", nil)
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(ContainSubstring("rate limit exceeded"))
		})
	})

	Describe("Discovery", func() {
		It("installs hooks from a directory and restarts known ones on a second pass", func() {
			ctx := context.Background()

			hooksDir, err := os.MkdirTemp("", "leforge-hooks-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = os.RemoveAll(hooksDir) })

			hookDir := filepath.Join(hooksDir, "echo")
			Expect(os.MkdirAll(hookDir, 0o750)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(hookDir, "hook.yaml"), []byte(echoManifestYAML), 0o600)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(hookDir, "main.lua"), []byte(echoSourceLua), 0o600)).To(Succeed())

			Expect(engine.InstallAll(ctx, hooksDir)).To(Succeed())
			Expect(engine.IsLoaded("echo")).To(BeTrue())

			stored, storeErr := repo.GetPlugin(ctx, "echo")
			Expect(storeErr).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(store.StatusRunning))

			// A second pass restarts rather than reinstalling
			Expect(engine.StopPlugin(ctx, "echo")).To(Succeed())
			Expect(engine.InstallAll(ctx, hooksDir)).To(Succeed())
			Expect(engine.IsLoaded("echo")).To(BeTrue())

			all, listErr := repo.ListPlugins(ctx)
			Expect(listErr).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})
})
