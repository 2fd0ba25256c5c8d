// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeForgeio/leforge-sub001/pkg/errutil"
)

func testInstance() *Instance {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Instance{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Name:      "text-utils",
		Runtime:   "embedded",
		Status:    StatusRunning,
		Manifest:  []byte(`{"name":"text-utils"}`),
		Config:    map[string]any{"region": "eu-west-1"},
		Source:    `exports.run = function() return 1 end`,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func instanceRows(inst *Instance) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "runtime", "status", "manifest", "config", "source", "error", "created_at", "updated_at",
	}).AddRow(
		inst.ID,
		inst.Name,
		inst.Runtime,
		string(inst.Status),
		inst.Manifest,
		[]byte(`{"region":"eu-west-1"}`),
		inst.Source,
		inst.Error,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
}

func TestPostgresPluginStore_GetPlugin(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantCode  string
	}{
		{
			name: "successful get",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances WHERE name = \$1`).
					WithArgs("text-utils").
					WillReturnRows(instanceRows(testInstance()))
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances WHERE name = \$1`).
					WithArgs("text-utils").
					WillReturnRows(pgxmock.NewRows([]string{
						"id", "name", "runtime", "status", "manifest", "config", "source", "error", "created_at", "updated_at",
					}))
			},
			wantErr:  true,
			wantCode: "PLUGIN_NOT_FOUND",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances WHERE name = \$1`).
					WithArgs("text-utils").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantCode: "PLUGIN_GET_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresPluginStore(mock)
			got, err := repo.GetPlugin(context.Background(), "text-utils")

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "text-utils", got.Name)
				assert.Equal(t, StatusRunning, got.Status)
				assert.Equal(t, map[string]any{"region": "eu-west-1"}, got.Config)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresPluginStore_GetPlugin_NotFoundIsTyped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM plugin_instances WHERE name = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "runtime", "status", "manifest", "config", "source", "error", "created_at", "updated_at",
		}))

	repo := NewPostgresPluginStore(mock)
	_, err = repo.GetPlugin(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPostgresPluginStore_CreatePlugin(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantCode  string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugin_instances`).
					WithArgs(
						"01ARZ3NDEKTSV4RRFFQ69G5FAV",
						"text-utils",
						"embedded",
						"running",
						[]byte(`{"name":"text-utils"}`),
						pgxmock.AnyArg(),
						`exports.run = function() return 1 end`,
						"",
						pgxmock.AnyArg(),
						pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate name",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugin_instances`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  true,
			wantCode: "DUPLICATE_PLUGIN",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugin_instances`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantCode: "PLUGIN_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresPluginStore(mock)
			err = repo.CreatePlugin(context.Background(), testInstance())

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresPluginStore_UpdatePlugin(t *testing.T) {
	status := StatusStopped
	errMsg := "boom"

	tests := []struct {
		name      string
		patch     Patch
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantCode  string
	}{
		{
			name:  "status only",
			patch: Patch{Status: &status},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE plugin_instances`).
					WithArgs("text-utils", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name:  "status and error",
			patch: Patch{Status: &status, Error: &errMsg},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE plugin_instances`).
					WithArgs("text-utils", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name:  "config only",
			patch: Patch{Config: map[string]any{"region": "us-east-1"}},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE plugin_instances`).
					WithArgs("text-utils", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name:  "no rows updated",
			patch: Patch{Status: &status},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE plugin_instances`).
					WithArgs("text-utils", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr:  true,
			wantCode: "PLUGIN_NOT_FOUND",
		},
		{
			name:  "database error",
			patch: Patch{Status: &status},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE plugin_instances`).
					WithArgs("text-utils", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantCode: "PLUGIN_UPDATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresPluginStore(mock)
			err = repo.UpdatePlugin(context.Background(), "text-utils", tt.patch)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresPluginStore_ListPlugins(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantLen   int
		wantErr   bool
	}{
		{
			name: "successful list",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances ORDER BY name`).
					WillReturnRows(instanceRows(testInstance()))
			},
			wantLen: 1,
		},
		{
			name: "empty list",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances ORDER BY name`).
					WillReturnRows(pgxmock.NewRows([]string{
						"id", "name", "runtime", "status", "manifest", "config", "source", "error", "created_at", "updated_at",
					}))
			},
			wantLen: 0,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM plugin_instances ORDER BY name`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresPluginStore(mock)
			got, err := repo.ListPlugins(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "PLUGIN_LIST_FAILED")
			} else {
				require.NoError(t, err)
				assert.Len(t, got, tt.wantLen)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}
