// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"context"
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// invoke runs the handle's underlying function inside its originating
// state with a uniform (input, context) signature. The Lua error from a
// failed call is propagated unchanged; converting it into a typed
// result is the governor's job, not the wrapper's.
//
// The caller must hold the module's call lock.
func (h *Handle) invoke(ctx context.Context, input any, ec ExecContext) (any, error) {
	L := h.mod.state
	L.SetContext(ctx)

	if err := L.CallByParam(lua.P{
		Fn:      h.fn,
		NRet:    1,
		Protect: true,
	}, ToLua(L, input), ec.toLua(L)); err != nil {
		return nil, err
	}

	ret := L.Get(-1)
	L.Pop(1)
	return FromLua(ret), nil
}

// luaErrorMessage extracts the value a hook raised, preserving the
// original message rather than gopher-lua's wrapped representation.
func luaErrorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// toLua renders the per-call execution context as the table passed to
// the hook as its second argument.
func (ec ExecContext) toLua(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "hook_id", lua.LString(ec.HookID))
	L.SetField(t, "function", lua.LString(ec.Function))
	L.SetField(t, "request_id", lua.LString(ec.RequestID))
	L.SetField(t, "timeout_ms", lua.LNumber(ec.Timeout.Milliseconds()))
	if ec.Config != nil {
		L.SetField(t, "config", ToLua(L, ec.Config))
	}
	return t
}
