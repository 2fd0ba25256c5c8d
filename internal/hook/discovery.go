// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package hook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/LeForgeio/leforge-sub001/internal/store"
)

// DiscoveredHook contains a manifest, its directory, and the embedded
// entrypoint source.
type DiscoveredHook struct {
	Manifest *Manifest
	Dir      string
	Source   string
}

// Discover finds all valid embedded hooks in the hooks directory.
// Invalid hooks are logged and skipped; container hooks are skipped
// because the container orchestrator owns them.
func Discover(_ context.Context, hooksDir string) ([]*DiscoveredHook, error) {
	entries, err := os.ReadDir(hooksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No hooks directory
		}
		return nil, fmt.Errorf("failed to read hooks directory: %w", err)
	}

	var hooks []*DiscoveredHook
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hookDir := filepath.Join(hooksDir, entry.Name())
		manifestPath := filepath.Join(hookDir, "hook.yaml")

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			slog.Warn("skipping hook without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping hook with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if !manifest.IsEmbedded() {
			slog.Debug("skipping non-embedded hook",
				"hook", manifest.Name,
				"runtime", string(manifest.Runtime))
			continue
		}

		entryPath := filepath.Join(hookDir, manifest.Embedded.Entrypoint)
		source, err := os.ReadFile(filepath.Clean(entryPath))
		if err != nil {
			slog.Warn("skipping hook with unreadable entrypoint",
				"hook", manifest.Name,
				"entrypoint", manifest.Embedded.Entrypoint,
				"error", err)
			continue
		}

		hooks = append(hooks, &DiscoveredHook{
			Manifest: manifest,
			Dir:      hookDir,
			Source:   string(source),
		})
	}

	return hooks, nil
}

// InstallAll discovers and brings up every embedded hook in the hooks
// directory: unknown hooks are installed, known ones restarted.
//
// Design: individual hook failures are logged as warnings but don't
// fail the whole pass, so the server starts even when some hooks have
// issues.
func (e *Engine) InstallAll(ctx context.Context, hooksDir string) error {
	discovered, err := Discover(ctx, hooksDir)
	if err != nil {
		return err
	}

	for _, dh := range discovered {
		name := dh.Manifest.Name

		_, err := e.store.GetPlugin(ctx, name)
		switch {
		case store.IsNotFound(err):
			if _, err := e.InstallPlugin(ctx, dh.Manifest, dh.Source, nil); err != nil {
				slog.Error("failed to install hook", "hook", name, "error", err)
			}
		case err != nil:
			slog.Error("failed to look up hook", "hook", name, "error", err)
		default:
			if err := e.StartPlugin(ctx, name); err != nil {
				slog.Error("failed to start hook", "hook", name, "error", err)
			}
		}
	}

	return nil
}
