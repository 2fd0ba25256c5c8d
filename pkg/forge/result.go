// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

// Package forge defines the types exchanged between the embedded hook
// engine and its callers (the HTTP routing and orchestration layers).
package forge

import "time"

// InvocationResult is the outcome of a single hook invocation.
// Invocation failures are reported here, never as Go errors, so a
// failing hook call cannot propagate a panic or error into the
// caller's request path.
type InvocationResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`

	// ExecutionTime is the elapsed wall-clock time in milliseconds,
	// recorded on every branch including failures and timeouts.
	ExecutionTime int64 `json:"executionTime"`

	// Outcome tags which branch produced the result. Set by the
	// executor, consumed by metrics; never part of the wire shape.
	Outcome Outcome `json:"-"`
}

// Outcome classifies an invocation's terminal branch.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeNotFound Outcome = "not_found"
)

// Failure builds a failed InvocationResult with the given message.
func Failure(msg string, elapsed time.Duration) InvocationResult {
	return InvocationResult{
		Success:       false,
		Error:         msg,
		ExecutionTime: elapsed.Milliseconds(),
		Outcome:       OutcomeError,
	}
}

// HealthStatus describes the in-memory state of one hook.
type HealthStatus struct {
	Healthy         bool       `json:"healthy"`
	Loaded          bool       `json:"loaded"`
	Exports         []string   `json:"exports,omitempty"`
	InvocationCount int64      `json:"invocationCount"`
	LastInvoked     *time.Time `json:"lastInvoked,omitempty"`
	LoadedAt        *time.Time `json:"loadedAt,omitempty"`
}
