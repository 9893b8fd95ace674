// Package usage tracks per-tool invocation counters. Increments are the
// hot path of every successful invocation and stay lock-free once a tool
// is tracked.
package usage

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"toolgate/internal/domain"
)

type record struct {
	seq      uint64
	count    atomic.Uint64
	lastUsed atomic.Int64 // unix nanoseconds, 0 when never used
}

type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
}

func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*record)}
}

// Track registers a tool with its catalog registration sequence. The
// sequence breaks ties in TopByUsage. Re-tracking an existing name keeps
// its counter but refreshes the sequence.
func (t *Tracker) Track(name string, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[name]; ok {
		rec.seq = seq
		return
	}
	t.records[name] = &record{seq: seq}
}

// Record increments the counter and last-used time for a tracked tool.
// Unknown names are ignored; the router only records after a catalog hit.
func (t *Tracker) Record(name string) bool {
	t.mu.RLock()
	rec, ok := t.records[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	rec.count.Add(1)
	rec.lastUsed.Store(time.Now().UnixNano())
	return true
}

// Seed initializes the counter and last-used time for a tracked tool
// from persisted usage. Untracked names are ignored.
func (t *Tracker) Seed(name string, count uint64, lastUsed time.Time) bool {
	t.mu.RLock()
	rec, ok := t.records[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	rec.count.Store(count)
	if !lastUsed.IsZero() {
		rec.lastUsed.Store(lastUsed.UnixNano())
	}
	return true
}

// Drop removes the counter for a deregistered tool.
func (t *Tracker) Drop(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, name)
}

// Count returns the current counter for a tool.
func (t *Tracker) Count(name string) uint64 {
	t.mu.RLock()
	rec, ok := t.records[name]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return rec.count.Load()
}

// TopByUsage returns the n highest counters, ties broken by ascending
// registration sequence. Zero-count tools participate, so a cold catalog
// still yields a deterministic essential tier.
func (t *Tracker) TopByUsage(n int) []domain.UsageSnapshot {
	if n <= 0 {
		return nil
	}

	t.mu.RLock()
	type entry struct {
		snap domain.UsageSnapshot
		seq  uint64
	}
	entries := make([]entry, 0, len(t.records))
	for name, rec := range t.records {
		var last time.Time
		if ns := rec.lastUsed.Load(); ns > 0 {
			last = time.Unix(0, ns)
		}
		entries = append(entries, entry{
			snap: domain.UsageSnapshot{Name: name, Count: rec.count.Load(), LastUsed: last},
			seq:  rec.seq,
		})
	}
	t.mu.RUnlock()

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].snap.Count != entries[b].snap.Count {
			return entries[a].snap.Count > entries[b].snap.Count
		}
		return entries[a].seq < entries[b].seq
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]domain.UsageSnapshot, len(entries))
	for idx, e := range entries {
		out[idx] = e.snap
	}
	return out
}
