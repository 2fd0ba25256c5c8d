// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LeForgeio/leforge-sub001/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container, connects, and
// applies the schema migrations.
func setupPostgresContainer() (*store.PostgresPluginStore, func(), error) {
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

func newInstance(name string) *store.Instance {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &store.Instance{
		ID:        ulid.Make().String(),
		Name:      name,
		Runtime:   "embedded",
		Status:    store.StatusInstalling,
		Manifest:  []byte(`{"name":"` + name + `","version":"1.0.0","runtime":"embedded"}`),
		Config:    map[string]any{"region": "eu-west-1"},
		Source:    `exports.run = function() return 1 end`,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var _ = Describe("PostgresPluginStore", func() {
	var repo *store.PostgresPluginStore
	var cleanup func()

	BeforeEach(func() {
		var err error
		repo, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("CreatePlugin", func() {
		It("persists and retrieves an instance", func() {
			ctx := context.Background()
			inst := newInstance("text-utils")

			Expect(repo.CreatePlugin(ctx, inst)).To(Succeed())

			got, err := repo.GetPlugin(ctx, "text-utils")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(inst.ID))
			Expect(got.Runtime).To(Equal("embedded"))
			Expect(got.Status).To(Equal(store.StatusInstalling))
			Expect(got.Config).To(Equal(map[string]any{"region": "eu-west-1"}))
			Expect(got.Source).To(Equal(inst.Source))
		})

		It("rejects a duplicate name", func() {
			ctx := context.Background()
			Expect(repo.CreatePlugin(ctx, newInstance("dup"))).To(Succeed())

			err := repo.CreatePlugin(ctx, newInstance("dup"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("already exists"))
		})
	})

	Describe("GetPlugin", func() {
		It("returns a typed not-found error for unknown names", func() {
			_, err := repo.GetPlugin(context.Background(), "ghost")
			Expect(err).To(HaveOccurred())
			Expect(store.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("UpdatePlugin", func() {
		It("applies partial patches and leaves other fields unchanged", func() {
			ctx := context.Background()
			Expect(repo.CreatePlugin(ctx, newInstance("text-utils"))).To(Succeed())

			status := store.StatusError
			msg := "compile failed"
			Expect(repo.UpdatePlugin(ctx, "text-utils", store.Patch{
				Status: &status,
				Error:  &msg,
			})).To(Succeed())

			got, err := repo.GetPlugin(ctx, "text-utils")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(store.StatusError))
			Expect(got.Error).To(Equal("compile failed"))
			Expect(got.Config).To(Equal(map[string]any{"region": "eu-west-1"}))
		})

		It("updates stored config", func() {
			ctx := context.Background()
			Expect(repo.CreatePlugin(ctx, newInstance("text-utils"))).To(Succeed())

			Expect(repo.UpdatePlugin(ctx, "text-utils", store.Patch{
				Config: map[string]any{"region": "us-east-1"},
			})).To(Succeed())

			got, err := repo.GetPlugin(ctx, "text-utils")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Config).To(Equal(map[string]any{"region": "us-east-1"}))
		})

		It("returns not-found for unknown names", func() {
			status := store.StatusRunning
			err := repo.UpdatePlugin(context.Background(), "ghost", store.Patch{Status: &status})
			Expect(err).To(HaveOccurred())
			Expect(store.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("ListPlugins", func() {
		It("returns instances ordered by name", func() {
			ctx := context.Background()
			Expect(repo.CreatePlugin(ctx, newInstance("zeta"))).To(Succeed())
			Expect(repo.CreatePlugin(ctx, newInstance("alpha"))).To(Succeed())

			got, err := repo.ListPlugins(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].Name).To(Equal("alpha"))
			Expect(got[1].Name).To(Equal("zeta"))
		})

		It("returns an empty list for a fresh database", func() {
			got, err := repo.ListPlugins(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})
})
