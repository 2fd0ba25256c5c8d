// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

// Package sandbox provides the capability-restricted Lua runtime for
// embedded ForgeHooks.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// safeLibrary represents a Lua library that is safe to load in a sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the allow-list of libraries.
// Safe: base, table, string, math.
// Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// blockedGlobals lists names that must resolve to nil inside the sandbox
// even though the base library (or a hook author's expectation) would
// otherwise bind them: code evaluation, module resolution, environment
// reflection, process and scheduling primitives, and the global table
// itself.
var blockedGlobals = []string{
	"dofile",
	"loadfile",
	"loadstring",
	"load",
	"require",
	"collectgarbage",
	"getfenv",
	"setfenv",
	"newproxy",
	"_G",
	"os",
	"io",
	"debug",
	"package",
	"coroutine",
	"channel",
}

// Factory creates sandboxed Lua states. Every state gets the same fixed
// capability set; hooks cannot request additional globals.
type Factory struct {
	// libraries allows overriding the default safe libraries for testing.
	libraries []safeLibrary
	logger    *slog.Logger
}

// NewFactory creates a new sandbox factory.
func NewFactory() *Factory {
	return &Factory{
		libraries: defaultSafeLibraries(),
		logger:    slog.Default(),
	}
}

// NewState creates a fresh Lua state holding only the fixed capability
// set: the safe libraries, a console table routed to host logging, a
// json encode/decode pair, and the module/exports placeholder used to
// capture the hook's exports. A fresh set is built per load so no hook
// can mutate an environment visible to another hook.
func (f *Factory) NewState(_ context.Context, hookID string) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	f.registerConsole(L, hookID)
	registerJSON(L)
	registerExports(L)

	return L, nil
}

// registerExports installs the module/exports placeholder pair. Hooks
// assign their functions to the exports table (or reassign
// module.exports wholesale); the loader reads it back after execution.
func registerExports(L *lua.LState) {
	exports := L.NewTable()
	mod := L.NewTable()
	L.SetField(mod, "exports", exports)
	L.SetGlobal("module", mod)
	L.SetGlobal("exports", exports)
}

// registerConsole installs console.log/info/warn/error/debug, all of
// which write to the host's structured logger instead of stdio.
func (f *Factory) registerConsole(L *lua.LState, hookID string) {
	logger := f.logger.With("hook", hookID)

	console := L.NewTable()
	L.SetField(console, "log", L.NewFunction(consoleFn(logger, slog.LevelInfo)))
	L.SetField(console, "info", L.NewFunction(consoleFn(logger, slog.LevelInfo)))
	L.SetField(console, "debug", L.NewFunction(consoleFn(logger, slog.LevelDebug)))
	L.SetField(console, "warn", L.NewFunction(consoleFn(logger, slog.LevelWarn)))
	L.SetField(console, "error", L.NewFunction(consoleFn(logger, slog.LevelError)))
	L.SetGlobal("console", console)
}

func consoleFn(logger *slog.Logger, level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.Get(i).String())
		}
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger.Log(ctx, level, strings.Join(parts, " "))
		return 0
	}
}

// registerJSON installs json.encode and json.decode built on the host's
// JSON codec via the sandbox value conversion.
func registerJSON(L *lua.LState) {
	jsonTable := L.NewTable()
	L.SetField(jsonTable, "encode", L.NewFunction(jsonEncode))
	L.SetField(jsonTable, "decode", L.NewFunction(jsonDecode))
	L.SetGlobal("json", jsonTable)
}
