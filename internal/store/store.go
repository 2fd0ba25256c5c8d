// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

// Package store persists ForgeHook instance records.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Status is the lifecycle state of a persisted hook instance.
type Status string

// Instance lifecycle states.
const (
	StatusInstalling Status = "installing"
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusError      Status = "error"
)

// Instance is the durable record of an installed hook. It outlives the
// in-memory module: the engine reads config and source from it and
// writes status transitions through it.
type Instance struct {
	// ID is the durable record identifier (a ULID).
	ID string

	// Name is the hook identifier, unique across instances.
	Name string

	// Runtime is "embedded" or "container".
	Runtime string

	Status Status

	// Manifest is the manifest serialized as JSON.
	Manifest []byte

	// Config is the hook's stored configuration, applied when a caller
	// does not supply one at invocation time.
	Config map[string]any

	// Source is the hook's entrypoint source text. Required to re-load
	// an embedded hook after a restart or an explicit stop.
	Source string

	// Error holds the captured message when Status is StatusError.
	Error string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch is a partial update to an instance record. Nil fields are left
// unchanged.
type Patch struct {
	Status *Status
	Config map[string]any
	Error  *string
}

// PluginStore persists hook instance records.
type PluginStore interface {
	GetPlugin(ctx context.Context, name string) (*Instance, error)
	CreatePlugin(ctx context.Context, inst *Instance) error
	UpdatePlugin(ctx context.Context, name string, patch Patch) error
	ListPlugins(ctx context.Context) ([]*Instance, error)
}

// IsNotFound reports whether err carries the PLUGIN_NOT_FOUND code.
func IsNotFound(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == "PLUGIN_NOT_FOUND"
}

// MemoryPluginStore is an in-memory PluginStore for tests and
// single-node development.
type MemoryPluginStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewMemoryPluginStore creates an empty in-memory store.
func NewMemoryPluginStore() *MemoryPluginStore {
	return &MemoryPluginStore{
		instances: make(map[string]*Instance),
	}
}

// GetPlugin returns the instance with the given name.
func (s *MemoryPluginStore) GetPlugin(_ context.Context, name string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[name]
	if !ok {
		return nil, oops.Code("PLUGIN_NOT_FOUND").With("hook", name).New("hook not found")
	}
	cp := *inst
	return &cp, nil
}

// CreatePlugin stores a new instance record.
func (s *MemoryPluginStore) CreatePlugin(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.Name]; exists {
		return oops.Code("DUPLICATE_PLUGIN").With("hook", inst.Name).New("hook already exists")
	}
	cp := *inst
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.instances[inst.Name] = &cp
	return nil
}

// UpdatePlugin applies a partial update to an instance record.
func (s *MemoryPluginStore) UpdatePlugin(_ context.Context, name string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		return oops.Code("PLUGIN_NOT_FOUND").With("hook", name).New("hook not found")
	}
	if patch.Status != nil {
		inst.Status = *patch.Status
	}
	if patch.Config != nil {
		inst.Config = patch.Config
	}
	if patch.Error != nil {
		inst.Error = *patch.Error
	}
	inst.UpdatedAt = time.Now()
	return nil
}

// ListPlugins returns all instance records sorted by name.
func (s *MemoryPluginStore) ListPlugins(_ context.Context) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
