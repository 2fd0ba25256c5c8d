// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

package hook

import (
	"sync"
	"time"
)

// DefaultMaxInvocationsPerMinute is the per-hook invocation ceiling.
const DefaultMaxInvocationsPerMinute = 120

// RateLimiter enforces a per-hook invocations-per-minute ceiling using
// a token bucket per hook identifier. Safe for concurrent use.
type RateLimiter struct {
	perMinute float64
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a limiter allowing perMinute invocations per
// hook. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: float64(perMinute),
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Allow reports whether one more invocation of the hook is within the
// ceiling, consuming a token when it is.
func (r *RateLimiter) Allow(id string) bool {
	if r.perMinute <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[id]
	if !ok {
		b = &bucket{tokens: r.perMinute, last: now}
		r.buckets[id] = b
	} else {
		refill := now.Sub(b.last).Seconds() * (r.perMinute / 60.0)
		b.tokens += refill
		if b.tokens > r.perMinute {
			b.tokens = r.perMinute
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remove drops the bucket for an unloaded hook.
func (r *RateLimiter) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, id)
}
