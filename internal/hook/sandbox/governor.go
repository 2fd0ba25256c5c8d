// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/LeForgeio/leforge-sub001/pkg/forge"
)

// DefaultTimeout is the fixed per-call wall-clock bound.
const DefaultTimeout = 5000 * time.Millisecond

// ExecContext is the per-call execution context handed to the hook.
// Created fresh for every invocation and discarded afterward.
type ExecContext struct {
	HookID    string
	Function  string
	RequestID string
	Timeout   time.Duration
	Config    map[string]any
}

// Governor bounds every invocation with a timeout and converts all
// outcomes into a single result shape.
type Governor struct {
	timeout time.Duration
}

// NewGovernor creates a governor with the given per-call timeout.
// A zero or negative timeout falls back to DefaultTimeout.
func NewGovernor(timeout time.Duration) *Governor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Governor{timeout: timeout}
}

// Timeout returns the fixed per-call timeout.
func (g *Governor) Timeout() time.Duration {
	return g.timeout
}

type outcome struct {
	value any
	err   error
}

// Invoke runs one exported function of a loaded module under the
// governor's timeout. The deadline is set as the Lua state's context,
// so a hook stuck in a loop is aborted by the VM rather than left
// consuming the state forever; the caller observes the timeout either
// way. Only successful calls bump the module's counters.
func (g *Governor) Invoke(ctx context.Context, mod *Module, fnName string, input any, config map[string]any) forge.InvocationResult {
	start := time.Now()

	h, ok := mod.Handle(fnName)
	if !ok {
		res := forge.Failure(fmt.Sprintf("function %q not found", fnName), time.Since(start))
		res.Outcome = forge.OutcomeNotFound
		return res
	}

	ec := ExecContext{
		HookID:    mod.ID,
		Function:  fnName,
		RequestID: ulid.Make().String(),
		Timeout:   g.timeout,
		Config:    config,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		mod.callMu.Lock()
		defer mod.callMu.Unlock()
		v, err := h.invoke(callCtx, input, ec)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			if callCtx.Err() != nil {
				return g.timeoutResult(mod.ID, fnName, ec.RequestID, elapsed)
			}
			slog.Debug("hook invocation failed",
				"hook", mod.ID,
				"function", fnName,
				"request_id", ec.RequestID,
				"error", out.err)
			return forge.Failure(luaErrorMessage(out.err), elapsed)
		}
		mod.recordInvocation()
		return forge.InvocationResult{
			Success:       true,
			Result:        out.value,
			ExecutionTime: elapsed.Milliseconds(),
			Outcome:       forge.OutcomeSuccess,
		}
	case <-callCtx.Done():
		return g.timeoutResult(mod.ID, fnName, ec.RequestID, time.Since(start))
	}
}

func (g *Governor) timeoutResult(hookID, fnName, requestID string, elapsed time.Duration) forge.InvocationResult {
	slog.Warn("hook invocation timed out",
		"hook", hookID,
		"function", fnName,
		"request_id", requestID,
		"timeout_ms", g.timeout.Milliseconds())
	res := forge.Failure(
		fmt.Sprintf("Execution timed out after %dms", g.timeout.Milliseconds()),
		elapsed,
	)
	res.Outcome = forge.OutcomeTimeout
	return res
}
