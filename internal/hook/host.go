// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package hook

import (
	"context"

	"github.com/LeForgeio/leforge-sub001/pkg/forge"
)

// EmbeddedHost manages the in-process hook runtime: the sandbox, the
// in-memory module registry, and governed invocation.
type EmbeddedHost interface {
	// Load compiles a hook's source and registers its module.
	Load(ctx context.Context, manifest *Manifest, source string) error

	// Unload tears down a loaded hook.
	Unload(ctx context.Context, id string) error

	// Invoke runs one exported function under the host's timeout.
	// Failures are returned in the result, never as an error.
	Invoke(ctx context.Context, id, fnName string, input any, config map[string]any) forge.InvocationResult

	// IsLoaded reports whether the hook has a live module.
	IsLoaded(id string) bool

	// Functions returns the resolved export names, or nil if not loaded.
	Functions(id string) []string

	// Health reports the in-memory state of one hook.
	Health(id string) forge.HealthStatus

	// Loaded returns identifiers of all loaded hooks.
	Loaded() []string

	// Close unloads everything and shuts down the host.
	Close(ctx context.Context) error
}
