// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package hook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/LeForgeio/leforge-sub001/internal/observability"
	"github.com/LeForgeio/leforge-sub001/internal/store"
	"github.com/LeForgeio/leforge-sub001/pkg/errutil"
	"github.com/LeForgeio/leforge-sub001/pkg/forge"
)

// Engine drives hook lifecycle transitions, keeping the in-memory host
// state and the persistent instance store in sync. It is the sole
// writer of both; callers must not issue concurrent install/stop for
// the same hook identifier.
type Engine struct {
	host    EmbeddedHost
	store   store.PluginStore
	limiter *RateLimiter
	metrics *observability.Metrics
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRateLimiter overrides the default per-hook invocation ceiling.
func WithRateLimiter(r *RateLimiter) EngineOption {
	return func(e *Engine) {
		e.limiter = r
	}
}

// WithMetrics enables Prometheus metrics recording.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a lifecycle engine over the given host and store.
func NewEngine(host EmbeddedHost, st store.PluginStore, opts ...EngineOption) *Engine {
	e := &Engine{
		host:    host,
		store:   st,
		limiter: NewRateLimiter(DefaultMaxInvocationsPerMinute),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadPlugin compiles a hook into the in-memory host. It does not touch
// the persistent store; InstallPlugin and StartPlugin do that.
func (e *Engine) LoadPlugin(ctx context.Context, m *Manifest, source string) error {
	if err := e.host.Load(ctx, m, source); err != nil {
		e.recordLoad("error")
		return err
	}
	e.recordLoad("success")
	slog.Info("loaded hook",
		"hook", m.Name,
		"version", m.Version,
		"exports", e.host.Functions(m.Name))
	return nil
}

// UnloadPlugin removes a hook from the in-memory host. Unloading a hook
// that is not loaded is a logged no-op.
func (e *Engine) UnloadPlugin(ctx context.Context, id string) {
	if err := e.host.Unload(ctx, id); err != nil {
		slog.Info("unload requested for hook that is not loaded", "hook", id)
		return
	}
	e.limiter.Remove(id)
	slog.Info("unloaded hook", "hook", id)
}

// IsLoaded reports whether the hook has a live in-memory module.
func (e *Engine) IsLoaded(id string) bool {
	return e.host.IsLoaded(id)
}

// GetFunctions returns the hook's resolved export names, or nil.
func (e *Engine) GetFunctions(id string) []string {
	return e.host.Functions(id)
}

// CheckHealth reports the in-memory state of one hook.
func (e *Engine) CheckHealth(id string) forge.HealthStatus {
	return e.host.Health(id)
}

// Invoke runs one exported function of a loaded hook. When the caller
// supplies no config, the hook's stored config is used; a store failure
// there is logged and the call proceeds without config rather than
// failing. All failures come back as a structured result, never as an
// error or panic.
func (e *Engine) Invoke(ctx context.Context, id, fnName string, input any, config map[string]any) forge.InvocationResult {
	if !e.host.IsLoaded(id) {
		e.recordInvocation(id, "not_loaded", 0)
		return forge.Failure("hook "+id+" not loaded", 0)
	}

	if !e.limiter.Allow(id) {
		e.recordInvocation(id, "rate_limited", 0)
		return forge.Failure("rate limit exceeded for hook "+id, 0)
	}

	if config == nil {
		inst, err := e.store.GetPlugin(ctx, id)
		switch {
		case err == nil:
			config = inst.Config
		case store.IsNotFound(err):
			// Loaded directly without a persisted record; nothing to fetch.
		default:
			errutil.LogError(slog.Default(), "failed to fetch stored hook config", err)
		}
	}

	res := e.host.Invoke(ctx, id, fnName, input, config)
	e.recordInvocation(id, classify(res), res.ExecutionTime)
	return res
}

// InstallPlugin persists a new embedded hook instance and loads it. On
// load failure the persisted record transitions to error with the
// captured message, and the load error is returned to the caller.
func (e *Engine) InstallPlugin(ctx context.Context, m *Manifest, source string, config map[string]any) (*store.Instance, error) {
	if err := m.Validate(); err != nil {
		return nil, oops.Code("INVALID_MANIFEST").In("engine").With("hook", m.Name).Wrap(err)
	}
	if !m.IsEmbedded() {
		return nil, oops.Code("WRONG_RUNTIME").
			In("engine").
			With("hook", m.Name).
			With("runtime", string(m.Runtime)).
			New("only embedded hooks can be installed into the in-process engine")
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return nil, oops.Code("INVALID_MANIFEST").In("engine").With("hook", m.Name).Wrap(err)
	}

	now := time.Now()
	inst := &store.Instance{
		ID:        ulid.Make().String(),
		Name:      m.Name,
		Runtime:   string(m.Runtime),
		Status:    store.StatusInstalling,
		Manifest:  manifestJSON,
		Config:    config,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreatePlugin(ctx, inst); err != nil {
		return nil, err
	}

	if err := e.LoadPlugin(ctx, m, source); err != nil {
		msg := err.Error()
		e.persistStatus(ctx, m.Name, store.StatusError, &msg)
		return nil, err
	}

	e.persistStatus(ctx, m.Name, store.StatusRunning, strPtr(""))
	inst.Status = store.StatusRunning
	return inst, nil
}

// StartPlugin re-loads a stopped embedded hook from its persisted
// record and marks it running.
func (e *Engine) StartPlugin(ctx context.Context, id string) error {
	inst, err := e.store.GetPlugin(ctx, id)
	if err != nil {
		return err
	}
	if inst.Runtime != string(RuntimeEmbedded) {
		return oops.Code("WRONG_RUNTIME").
			In("engine").
			With("hook", id).
			With("runtime", inst.Runtime).
			New("hook is not an embedded hook")
	}

	if e.host.IsLoaded(id) {
		slog.Debug("start requested for hook that is already loaded", "hook", id)
		e.persistStatus(ctx, id, store.StatusRunning, nil)
		return nil
	}

	var m Manifest
	if err := json.Unmarshal(inst.Manifest, &m); err != nil {
		return oops.Code("INVALID_MANIFEST").In("engine").With("hook", id).Wrap(err)
	}

	if err := e.LoadPlugin(ctx, &m, inst.Source); err != nil {
		msg := err.Error()
		e.persistStatus(ctx, id, store.StatusError, &msg)
		return err
	}

	e.persistStatus(ctx, id, store.StatusRunning, strPtr(""))
	return nil
}

// StopPlugin unloads the in-memory module and marks the persisted
// record stopped. Invocations after a stop behave exactly as if the
// hook had never been loaded.
func (e *Engine) StopPlugin(ctx context.Context, id string) error {
	inst, err := e.store.GetPlugin(ctx, id)
	if err != nil {
		return err
	}
	if inst.Runtime != string(RuntimeEmbedded) {
		return oops.Code("WRONG_RUNTIME").
			In("engine").
			With("hook", id).
			With("runtime", inst.Runtime).
			New("hook is not an embedded hook")
	}

	e.UnloadPlugin(ctx, id)

	if err := e.store.UpdatePlugin(ctx, id, store.Patch{Status: statusPtr(store.StatusStopped)}); err != nil {
		return err
	}
	return nil
}

// Shutdown unloads every loaded hook and closes the host. Used only at
// process teardown; persisted statuses are left as-is so hooks resume
// on the next start.
func (e *Engine) Shutdown(ctx context.Context) error {
	for _, id := range e.host.Loaded() {
		if err := e.host.Unload(ctx, id); err != nil {
			errutil.LogError(slog.Default(), "failed to unload hook during shutdown", err)
		}
	}
	return e.host.Close(ctx)
}

// persistStatus writes a status transition through the store. A
// persistence failure is logged but never fails the operation it
// accompanies.
func (e *Engine) persistStatus(ctx context.Context, id string, status store.Status, errMsg *string) {
	patch := store.Patch{Status: &status, Error: errMsg}
	if err := e.store.UpdatePlugin(ctx, id, patch); err != nil {
		errutil.LogError(slog.Default(), "failed to persist hook status", err)
	}
}

func (e *Engine) recordLoad(status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.LoadsTotal.WithLabelValues(status).Inc()
}

func (e *Engine) recordInvocation(id, status string, elapsedMs int64) {
	if e.metrics == nil {
		return
	}
	e.metrics.InvocationsTotal.WithLabelValues(id, status).Inc()
	e.metrics.ExecutionSeconds.WithLabelValues(id).Observe(float64(elapsedMs) / 1000.0)
}

// classify maps an invocation result onto a metric status label. The
// executor tags each result with its terminal branch, so a hook whose
// own error text mentions a timeout is still labelled an error.
func classify(res forge.InvocationResult) string {
	if res.Outcome != "" {
		return string(res.Outcome)
	}
	if res.Success {
		return "success"
	}
	return "error"
}

func strPtr(s string) *string {
	return &s
}

func statusPtr(s store.Status) *store.Status {
	return &s
}
