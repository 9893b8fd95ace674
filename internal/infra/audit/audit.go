// Package audit keeps a bounded in-memory record of recent invocation
// outcomes for the observability surface.
package audit

import (
	"sync"

	"toolgate/internal/domain"
)

type Log struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	next    int
	size    int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = domain.DefaultAuditCapacity
	}
	return &Log{entries: make([]domain.AuditEntry, capacity)}
}

func (l *Log) Append(entry domain.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]domain.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
