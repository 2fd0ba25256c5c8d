// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

// Package hook provides ForgeHook management and lifecycle control.
package hook

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Runtime identifies how a hook executes.
type Runtime string

// Runtimes supported by the platform.
const (
	RuntimeEmbedded  Runtime = "embedded"
	RuntimeContainer Runtime = "container"
)

// Manifest represents a hook.yaml file.
type Manifest struct {
	Name      string           `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version   string           `yaml:"version" json:"version" jsonschema:"minLength=1"`
	Runtime   Runtime          `yaml:"runtime" json:"runtime" jsonschema:"enum=embedded,enum=container"`
	Embedded  *EmbeddedConfig  `yaml:"embedded,omitempty" json:"embedded,omitempty"`
	Container *ContainerConfig `yaml:"container,omitempty" json:"container,omitempty"`
}

// EmbeddedConfig declares how an in-process hook is loaded. Exports is
// the exact list of function names the hook promises to define; names
// not in this list are never exposed to callers.
type EmbeddedConfig struct {
	Entrypoint string   `yaml:"entrypoint" json:"entrypoint" jsonschema:"minLength=1"`
	Exports    []string `yaml:"exports" json:"exports" jsonschema:"minItems=1"`
}

// ContainerConfig holds container hook configuration. The container
// orchestrator consumes this; the embedded engine only checks that it
// is not being asked to load one.
type ContainerConfig struct {
	Image string `yaml:"image" json:"image"`
}

// maxNameLength is the maximum allowed length for hook names.
const maxNameLength = 64

// namePattern validates hook names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a hook.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	switch m.Runtime {
	case RuntimeEmbedded:
		if m.Embedded == nil {
			return fmt.Errorf("embedded is required when runtime is embedded")
		}
		if m.Embedded.Entrypoint == "" {
			return fmt.Errorf("embedded.entrypoint is required")
		}
		if len(m.Embedded.Exports) == 0 {
			return fmt.Errorf("embedded.exports must declare at least one function")
		}
		seen := make(map[string]struct{}, len(m.Embedded.Exports))
		for _, name := range m.Embedded.Exports {
			if name == "" {
				return fmt.Errorf("embedded.exports must not contain empty names")
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("embedded.exports contains duplicate name %q", name)
			}
			seen[name] = struct{}{}
		}
	case RuntimeContainer:
		if m.Container == nil {
			return fmt.Errorf("container is required when runtime is container")
		}
		if m.Container.Image == "" {
			return fmt.Errorf("container.image is required")
		}
	default:
		return fmt.Errorf("runtime must be 'embedded' or 'container', got %q", m.Runtime)
	}

	return nil
}

// IsEmbedded reports whether the manifest declares in-process execution.
func (m *Manifest) IsEmbedded() bool {
	return m.Runtime == RuntimeEmbedded && m.Embedded != nil
}
