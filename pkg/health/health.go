// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health carries point-in-time health snapshots of the upstream
// extractors, for the /health endpoint and `glimpse doctor`.
package health

import "time"

// Metrics is the health of one extractor. All fields are snapshots safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// Reporter is implemented by extractors that track their own health.
type Reporter interface {
	Name() string
	HealthMetrics() Metrics
}

// Collect snapshots every value that implements Reporter, keyed by name.
// Values that do not implement it, including nil, are ignored.
func Collect(components ...any) map[string]Metrics {
	out := make(map[string]Metrics, len(components))
	for _, c := range components {
		if r, ok := c.(Reporter); ok {
			out[r.Name()] = r.HealthMetrics()
		}
	}
	return out
}

// Degraded reports whether any collected component is unavailable.
func Degraded(m map[string]Metrics) bool {
	for _, v := range m {
		if !v.Available {
			return true
		}
	}
	return false
}
