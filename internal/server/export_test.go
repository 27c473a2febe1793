// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import "time"

// TestLimiter exposes the per-IP token buckets with an injectable clock.
type TestLimiter struct{ l *limiter }

// NewTestLimiter creates a limiter whose clock is now.
func NewTestLimiter(cfg RateLimitConfig, now func() time.Time) *TestLimiter {
	l := newLimiter(cfg)
	l.now = now
	return &TestLimiter{l: l}
}

func (t *TestLimiter) Allow(ip string) bool { return t.l.allow(ip) }
func (t *TestLimiter) Sweep() int           { return t.l.sweep() }
func (t *TestLimiter) Size() int            { return t.l.size() }
