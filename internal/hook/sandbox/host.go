// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/LeForgeio/leforge-sub001/internal/hook"
	"github.com/LeForgeio/leforge-sub001/pkg/forge"
)

// Compile-time interface check.
var _ hook.EmbeddedHost = (*Host)(nil)

// Host owns the in-memory registry of loaded embedded hooks: the
// mapping from hook identifier to Module. Load and Unload are the only
// writers; invocation dispatch takes read locks only.
type Host struct {
	factory  *Factory
	governor *Governor
	modules  map[string]*Module
	mu       sync.RWMutex
	closed   bool
}

// Option configures the Host.
type Option func(*Host)

// WithTimeout overrides the fixed per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.governor = NewGovernor(d)
	}
}

// NewHost creates an embedded hook host with the default timeout.
func NewHost(opts ...Option) *Host {
	h := &Host{
		factory:  NewFactory(),
		governor: NewGovernor(DefaultTimeout),
		modules:  make(map[string]*Module),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load compiles and registers a hook. A hook identifier that is already
// loaded must be unloaded first; the host never replaces a live module
// under a running invocation.
func (h *Host) Load(ctx context.Context, m *hook.Manifest, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return oops.In("sandbox").With("hook", m.Name).With("operation", "load").New("host is closed")
	}
	if _, exists := h.modules[m.Name]; exists {
		return oops.Code("ALREADY_LOADED").
			In("sandbox").
			With("hook", m.Name).
			With("operation", "load").
			Hint("unload the hook before reloading it").
			New("hook already loaded")
	}

	mod, err := loadModule(ctx, h.factory, m, source)
	if err != nil {
		return err
	}

	h.modules[m.Name] = mod
	return nil
}

// Unload removes a hook from the registry and tears down its state.
func (h *Host) Unload(_ context.Context, id string) error {
	h.mu.Lock()
	mod, ok := h.modules[id]
	if !ok {
		h.mu.Unlock()
		return oops.In("sandbox").With("hook", id).With("operation", "unload").New("hook not loaded")
	}
	delete(h.modules, id)
	h.mu.Unlock()

	// Close outside the registry lock; it waits for any in-flight call.
	mod.Close()
	return nil
}

// Invoke runs one exported function of a loaded hook. Failures are
// always returned as a structured result, never as an error.
func (h *Host) Invoke(ctx context.Context, id, fnName string, input any, config map[string]any) forge.InvocationResult {
	h.mu.RLock()
	mod, ok := h.modules[id]
	h.mu.RUnlock()
	if !ok {
		return forge.Failure("hook "+id+" not loaded", 0)
	}

	return h.governor.Invoke(ctx, mod, fnName, input, config)
}

// IsLoaded reports whether the hook identifier has a live module.
func (h *Host) IsLoaded(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.modules[id]
	return ok
}

// Functions returns the resolved export names for a loaded hook, or nil.
func (h *Host) Functions(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	mod, ok := h.modules[id]
	if !ok {
		return nil
	}
	return mod.Exports()
}

// Health reports the in-memory state of one hook. The zero "not
// loaded" shape has Healthy and Loaded false and no timestamps.
func (h *Host) Health(id string) forge.HealthStatus {
	h.mu.RLock()
	mod, ok := h.modules[id]
	h.mu.RUnlock()
	if !ok {
		return forge.HealthStatus{}
	}

	count, last := mod.Stats()
	status := forge.HealthStatus{
		Healthy:         true,
		Loaded:          true,
		Exports:         mod.Exports(),
		InvocationCount: count,
	}
	loadedAt := mod.LoadedAt
	status.LoadedAt = &loadedAt
	if !last.IsZero() {
		status.LastInvoked = &last
	}
	return status
}

// Loaded returns the identifiers of all loaded hooks, sorted.
func (h *Host) Loaded() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.modules))
	for name := range h.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close unloads every hook and shuts down the host.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	mods := h.modules
	h.modules = nil
	h.closed = true
	h.mu.Unlock()

	for _, mod := range mods {
		mod.Close()
	}
	return nil
}
