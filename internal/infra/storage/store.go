// Package storage is the write-through persistence layer. The engine is
// rebuilt from it at process start; it is never read on the hot path.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"toolgate/internal/domain"
)

var (
	bucketTools = []byte("tools")
	bucketUsage = []byte("usage")
)

type toolRecord struct {
	Descriptor domain.ToolDescriptor `json:"descriptor"`
	SavedAt    time.Time             `json:"savedAt"`
}

type usageRecord struct {
	Count    uint64    `json:"count"`
	LastUsed time.Time `json:"lastUsed"`
}

type Store struct {
	mu     sync.Mutex
	db     *bolt.DB
	path   string
	closed bool
}

func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTools, bucketUsage} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure store schema: %w", err)
	}
	return &Store{db: db, path: trimmed}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// LoadAllTools returns persisted descriptors ordered by save time so the
// catalog's registration sequence stays stable across restarts.
func (s *Store) LoadAllTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []toolRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTools).ForEach(func(_, value []byte) error {
			var rec toolRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("decode persisted tool: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(a, b int) bool {
		if !records[a].SavedAt.Equal(records[b].SavedAt) {
			return records[a].SavedAt.Before(records[b].SavedAt)
		}
		return records[a].Descriptor.Name < records[b].Descriptor.Name
	})
	out := make([]domain.ToolDescriptor, len(records))
	for i, rec := range records {
		out[i] = rec.Descriptor
	}
	return out, nil
}

func (s *Store) SaveTool(ctx context.Context, desc domain.ToolDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(toolRecord{Descriptor: desc, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode tool %q: %w", desc.Name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTools).Put([]byte(desc.Name), raw)
	})
}

// RemoveToolsByBackend drops the descriptors and usage records owned by
// one backend in a single transaction.
func (s *Store) RemoveToolsByBackend(ctx context.Context, backendID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		tools := tx.Bucket(bucketTools)
		usage := tx.Bucket(bucketUsage)

		var remove [][]byte
		err := tools.ForEach(func(key, value []byte) error {
			var rec toolRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("decode persisted tool: %w", err)
			}
			if rec.Descriptor.BackendID == backendID {
				remove = append(remove, append([]byte(nil), key...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range remove {
			if err := tools.Delete(key); err != nil {
				return err
			}
			if err := usage.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAllUsage returns the persisted usage counters keyed by tool name,
// used to seed the in-memory tracker at process start.
func (s *Store) LoadAllUsage(ctx context.Context) (map[string]domain.UsageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]domain.UsageSnapshot)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsage).ForEach(func(key, value []byte) error {
			var rec usageRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("decode usage for %q: %w", key, err)
			}
			name := string(key)
			out[name] = domain.UsageSnapshot{Name: name, Count: rec.Count, LastUsed: rec.LastUsed}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordUsage increments the persisted counter for a tool. Write-through
// only; runtime reads come from the in-memory tracker.
func (s *Store) RecordUsage(ctx context.Context, name string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		usage := tx.Bucket(bucketUsage)
		var rec usageRecord
		if existing := usage.Get([]byte(name)); existing != nil {
			if err := json.Unmarshal(existing, &rec); err != nil {
				return fmt.Errorf("decode usage for %q: %w", name, err)
			}
		}
		rec.Count++
		rec.LastUsed = at
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return usage.Put([]byte(name), raw)
	})
}
