// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/LeForgeio/leforge-sub001/internal/hook"
)

// loadModule compiles one hook's source into a fresh sandboxed state
// and materializes its Module. The manifest's declared export list is
// the only source of export names: names missing from the compiled
// source or bound to non-callable values are skipped with a warning,
// and a hook with zero usable exports is a load failure, not an empty
// module.
func loadModule(ctx context.Context, factory *Factory, m *hook.Manifest, source string) (*Module, error) {
	if !m.IsEmbedded() {
		return nil, oops.Code("NOT_EMBEDDABLE").
			In("sandbox").
			With("hook", m.Name).
			With("runtime", string(m.Runtime)).
			New("manifest does not declare embedded execution")
	}

	L, err := factory.NewState(ctx, m.Name)
	if err != nil {
		return nil, oops.Code("SANDBOX_INIT_FAILED").
			In("sandbox").
			With("hook", m.Name).
			Hint("failed to build capability set").
			Wrap(err)
	}

	L.SetContext(ctx)
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, oops.Code("COMPILE_ERROR").
			In("sandbox").
			With("hook", m.Name).
			With("entrypoint", m.Embedded.Entrypoint).
			Hint("source failed to compile or execute").
			New(luaErrorMessage(err))
	}

	mod := &Module{
		ID:       m.Name,
		LoadedAt: time.Now(),
		state:    L,
		handles:  make(map[string]*Handle, len(m.Embedded.Exports)),
	}

	exports := resolveExports(L)
	for _, name := range m.Embedded.Exports {
		var v lua.LValue = lua.LNil
		if exports != nil {
			v = exports.RawGetString(name)
		}
		fn, ok := v.(*lua.LFunction)
		if !ok {
			slog.Warn("declared export missing or not callable",
				"hook", m.Name,
				"export", name,
				"got", v.Type().String())
			continue
		}
		mod.handles[name] = &Handle{Name: name, fn: fn, mod: mod}
	}

	if len(mod.handles) == 0 {
		L.Close()
		return nil, oops.Code("NO_VALID_EXPORTS").
			In("sandbox").
			With("hook", m.Name).
			With("declared", m.Embedded.Exports).
			New("no declared export resolved to a callable value")
	}

	return mod, nil
}

// resolveExports reads back the module/exports placeholder. A hook may
// populate the exports table in place or reassign module.exports
// wholesale; the reassigned table wins when both are present.
func resolveExports(L *lua.LState) *lua.LTable {
	if modTable, ok := L.GetGlobal("module").(*lua.LTable); ok {
		if exports, ok := modTable.RawGetString("exports").(*lua.LTable); ok {
			return exports
		}
	}
	if exports, ok := L.GetGlobal("exports").(*lua.LTable); ok {
		return exports
	}
	return nil
}
