// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a Go value into its Lua representation. Maps become
// tables keyed by string, slices become array tables. Values outside
// the JSON-compatible set are round-tripped through JSON; anything that
// still does not fit is rendered as a string.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return lua.LString(val.String())
		}
		return lua.LNumber(f)
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, ToLua(L, item))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(ToLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, item := range val {
			t.Append(lua.LString(item))
		}
		return t
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return lua.LString(stringify(val))
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return lua.LString(stringify(val))
		}
		// generic is now within the JSON-compatible set
		return ToLua(L, generic)
	}
}

// FromLua converts a Lua value back into a Go value. Array-shaped
// tables become []any, everything else table-shaped becomes
// map[string]any. Non-data values (functions, userdata) are rendered
// as strings.
func FromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		return tableToGo(val)
	default:
		return v.String()
	}
}

// tableToGo renders a Lua table as a slice when it is a pure array
// (1..n integer keys and nothing else), otherwise as a string-keyed map.
func tableToGo(t *lua.LTable) any {
	maxN := t.MaxN()
	entries := 0
	t.ForEach(func(_, _ lua.LValue) { entries++ })

	if maxN > 0 && maxN == entries {
		arr := make([]any, 0, maxN)
		for i := 1; i <= maxN; i++ {
			arr = append(arr, FromLua(t.RawGetInt(i)))
		}
		return arr
	}

	m := make(map[string]any, entries)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = FromLua(v)
	})
	return m
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}

// jsonEncode implements the sandbox's json.encode.
func jsonEncode(L *lua.LState) int {
	v := FromLua(L.CheckAny(1))
	b, err := json.Marshal(v)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(b))
	return 1
}

// jsonDecode implements the sandbox's json.decode.
func jsonDecode(L *lua.LState) int {
	raw := L.CheckString(1)
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(ToLua(L, v))
	return 1
}
