// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// poolIface abstracts the pgx pool so tests can use pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPluginStore implements PluginStore using PostgreSQL.
type PostgresPluginStore struct {
	pool poolIface
}

// NewPostgresPluginStore creates a PluginStore backed by the given pool.
func NewPostgresPluginStore(pool poolIface) *PostgresPluginStore {
	return &PostgresPluginStore{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity, retrying with
// fibonacci backoff for up to maxWait.
func Connect(ctx context.Context, databaseURL string, maxWait time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxDuration(maxWait, retry.NewFibonacci(250*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	return pool, nil
}

const instanceColumns = `id, name, runtime, status, manifest, config, source, error, created_at, updated_at`

// GetPlugin retrieves an instance record by hook name.
func (s *PostgresPluginStore) GetPlugin(ctx context.Context, name string) (*Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM plugin_instances WHERE name = $1`, name)

	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PLUGIN_NOT_FOUND").With("hook", name).New("hook not found")
	}
	if err != nil {
		return nil, oops.Code("PLUGIN_GET_FAILED").With("operation", "get plugin").With("hook", name).Wrap(err)
	}
	return inst, nil
}

// CreatePlugin stores a new instance record.
func (s *PostgresPluginStore) CreatePlugin(ctx context.Context, inst *Instance) error {
	configJSON, err := marshalConfig(inst.Config)
	if err != nil {
		return oops.Code("PLUGIN_CREATE_FAILED").With("hook", inst.Name).Wrap(err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO plugin_instances (id, name, runtime, status, manifest, config, source, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		inst.ID,
		inst.Name,
		inst.Runtime,
		string(inst.Status),
		inst.Manifest,
		configJSON,
		inst.Source,
		inst.Error,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("DUPLICATE_PLUGIN").With("hook", inst.Name).New("hook already exists")
		}
		return oops.Code("PLUGIN_CREATE_FAILED").
			With("operation", "insert plugin_instance").
			With("hook", inst.Name).
			Wrap(err)
	}
	return nil
}

// UpdatePlugin applies a partial update to an instance record.
func (s *PostgresPluginStore) UpdatePlugin(ctx context.Context, name string, patch Patch) error {
	var statusArg *string
	if patch.Status != nil {
		v := string(*patch.Status)
		statusArg = &v
	}

	var configArg []byte
	if patch.Config != nil {
		b, err := marshalConfig(patch.Config)
		if err != nil {
			return oops.Code("PLUGIN_UPDATE_FAILED").With("hook", name).Wrap(err)
		}
		configArg = b
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE plugin_instances
		SET status = COALESCE($2, status),
		    config = COALESCE($3, config),
		    error  = COALESCE($4, error),
		    updated_at = NOW()
		WHERE name = $1
	`, name, statusArg, configArg, patch.Error)
	if err != nil {
		return oops.Code("PLUGIN_UPDATE_FAILED").
			With("operation", "update plugin_instance").
			With("hook", name).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("PLUGIN_NOT_FOUND").With("hook", name).New("hook not found")
	}
	return nil
}

// ListPlugins returns all instance records ordered by name.
func (s *PostgresPluginStore) ListPlugins(ctx context.Context) ([]*Instance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM plugin_instances ORDER BY name`)
	if err != nil {
		return nil, oops.Code("PLUGIN_LIST_FAILED").With("operation", "list plugins").Wrap(err)
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, oops.Code("PLUGIN_LIST_FAILED").With("operation", "scan plugin row").Wrap(err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PLUGIN_LIST_FAILED").With("operation", "iterate plugins").Wrap(err)
	}
	return out, nil
}

// scanInstance reads one instance row.
func scanInstance(row pgx.Row) (*Instance, error) {
	var inst Instance
	var status string
	var configJSON []byte
	if err := row.Scan(
		&inst.ID,
		&inst.Name,
		&inst.Runtime,
		&status,
		&inst.Manifest,
		&configJSON,
		&inst.Source,
		&inst.Error,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inst.Status = Status(status)
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &inst.Config); err != nil {
			return nil, err
		}
	}
	return &inst, nil
}

func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		return nil, nil
	}
	return json.Marshal(config)
}
