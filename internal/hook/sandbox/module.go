// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Module is one loaded embedded hook: its isolated Lua state plus the
// handles wrapping its declared exports. A Module exists only when its
// source compiled and at least one declared export resolved to a
// callable value.
type Module struct {
	// ID is the hook identifier (the manifest name).
	ID string

	// LoadedAt is when the module was created.
	LoadedAt time.Time

	state   *lua.LState
	handles map[string]*Handle

	// callMu serializes invocations. The Lua state is not safe for
	// concurrent use, so calls against the same module interleave the
	// same way the handles' originating context requires.
	callMu sync.Mutex

	statMu      sync.Mutex
	invocations int64
	lastInvoked time.Time
}

// Handle is a named callable bound to the module it was defined in.
// Handles are never shared across modules and never invoked outside
// their originating state.
type Handle struct {
	Name string
	fn   *lua.LFunction
	mod  *Module
}

// Exports returns the resolved export names in sorted order.
func (m *Module) Exports() []string {
	names := make([]string, 0, len(m.handles))
	for name := range m.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle returns the named export, if it resolved at load time.
func (m *Module) Handle(name string) (*Handle, bool) {
	h, ok := m.handles[name]
	return h, ok
}

// Stats returns the invocation count and last-invoked timestamp.
// The timestamp zero value means the module has never been invoked.
func (m *Module) Stats() (int64, time.Time) {
	m.statMu.Lock()
	defer m.statMu.Unlock()
	return m.invocations, m.lastInvoked
}

// recordInvocation bumps the counters after a successful call. Failed
// calls do not count so health metrics reflect productive work.
func (m *Module) recordInvocation() {
	m.statMu.Lock()
	defer m.statMu.Unlock()
	m.invocations++
	m.lastInvoked = time.Now()
}

// Close tears down the module's Lua state. It waits for an in-flight
// call to release the state before closing it.
func (m *Module) Close() {
	m.callMu.Lock()
	defer m.callMu.Unlock()
	m.state.Close()
}
