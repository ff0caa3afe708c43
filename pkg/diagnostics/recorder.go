// Package diagnostics keeps a fixed-capacity in-memory ring of recent
// resolution calls. It is an observability hook consumed by the debug route;
// the resolution core only writes to it and never reads it back.
package diagnostics

import (
	"sync"
	"time"
)

// Entry is one recorded resolution call
type Entry struct {
	TenantID      string        `json:"tenant_id"`
	IngestionID   string        `json:"ingestion_id"`
	PhotoBundleID string        `json:"photo_bundle_id,omitempty"`
	Operation     string        `json:"operation"`
	Candidates    int           `json:"candidates"`
	Matches       int           `json:"matches"`
	Proposals     int           `json:"proposals"`
	Status        string        `json:"status,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	At            time.Time     `json:"at"`
}

// Recorder is a concurrency-safe ring buffer of recent entries. A nil
// Recorder is a valid no-op so callers never need to guard their writes.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRecorder creates a recorder holding the most recent capacity entries
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 64
	}
	return &Recorder{entries: make([]Entry, capacity)}
}

// Record appends an entry, evicting the oldest when full
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Recent returns the recorded entries, newest first
func (r *Recorder) Recent() []Entry {
	if r == nil {
		return []Entry{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}

	out := make([]Entry, 0, size)
	for i := 1; i <= size; i++ {
		idx := r.next - i
		if idx < 0 {
			idx += len(r.entries)
		}
		out = append(out, r.entries[idx])
	}
	return out
}
