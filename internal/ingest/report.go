// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/glimpse/internal/store"
)

// BatchState is the lifecycle position of a batch.
type BatchState string

const (
	StateOpen       BatchState = "open"
	StateExtracting BatchState = "extracting"
	StatePersisting BatchState = "persisting"
	StateCommitted  BatchState = "committed"
	StateAborted    BatchState = "aborted"
)

// Status is the outcome for one item of a batch.
type Status string

const (
	StatusPending       Status = "pending"
	StatusIndexed       Status = "indexed"        // image and both descriptors written
	StatusStored        Status = "stored"         // image written, no extractors configured
	StatusSkipped       Status = "skipped"        // already complete, extraction skipped
	StatusDecodeFailed  Status = "decode_failed"  // dropped before storage
	StatusExtractFailed Status = "extract_failed" // image written, descriptors missing
)

// Item is one raw image offered for ingestion.
type Item struct {
	Name string
	Data []byte
}

// Result records what happened to one Item.
type Result struct {
	Name      string            `json:"name"`
	Hash      store.ContentHash `json:"hash,omitempty"`
	Status    Status            `json:"status"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// BatchReport describes a processed batch.
type BatchReport struct {
	ID       string     `json:"id"`
	State    BatchState `json:"state"`
	Results  []Result   `json:"results"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
}

func newBatchReport(names []string) *BatchReport {
	r := &BatchReport{
		ID:      uuid.NewString(),
		State:   StateOpen,
		Results: make([]Result, len(names)),
		Started: time.Now(),
	}
	for i, n := range names {
		r.Results[i] = Result{Name: n, Status: StatusPending}
	}
	return r
}

// Count returns how many results have status s.
func (r *BatchReport) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// RunReport aggregates the batches of a Run or Backfill.
type RunReport struct {
	Batches  int            `json:"batches"`
	Items    int            `json:"items"`
	Statuses map[Status]int `json:"statuses"`
}

func (r *RunReport) add(b *BatchReport) {
	if r.Statuses == nil {
		r.Statuses = map[Status]int{}
	}
	r.Batches++
	r.Items += len(b.Results)
	for _, res := range b.Results {
		r.Statuses[res.Status]++
	}
}
