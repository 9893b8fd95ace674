// Package catalog holds the authoritative tool registry. It is the only
// component that mutates descriptors; the ranked index and usage tracker
// are kept in sync here and never touched directly by callers.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/usage"
)

// SearchIndex is the ranked-index contract the catalog keeps consistent.
type SearchIndex interface {
	Add(desc domain.ToolDescriptor)
	Remove(name string)
	Reset()
	Search(queryText string, limit int) ([]domain.Hit, error)
	Len() int
}

type entry struct {
	desc domain.ToolDescriptor
	seq  uint64
}

type Options struct {
	Index   SearchIndex
	Tracker *usage.Tracker
	Store   domain.Store
	Metrics domain.Metrics
	Logger  *zap.Logger
}

type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	nextSeq uint64

	index   SearchIndex
	tracker *usage.Tracker
	store   domain.Store
	metrics domain.Metrics
	logger  *zap.Logger
}

func New(opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		entries: make(map[string]*entry),
		index:   opts.Index,
		tracker: opts.Tracker,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  logger.Named("catalog"),
	}
}

// Register inserts or replaces a single descriptor. Replacement is
// atomic last-write-wins: readers see either the old or the new entry,
// never both and never neither.
func (c *Catalog) Register(ctx context.Context, desc domain.ToolDescriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}

	c.mu.Lock()
	c.registerLocked(desc)
	count := len(c.entries)
	c.mu.Unlock()

	c.observeCount(count)
	c.persistTool(ctx, desc)
	return nil
}

// RegisterBatch registers all descriptors owned by one backend as a
// single atomic batch. Validation runs up front so a malformed
// descriptor rejects the whole batch and leaves the catalog untouched;
// the failure is isolated to that backend.
func (c *Catalog) RegisterBatch(ctx context.Context, backendID string, descs []domain.ToolDescriptor) error {
	for _, desc := range descs {
		if desc.BackendID != backendID {
			return domain.E(domain.CodeInvalidArgument, "catalog.RegisterBatch",
				fmt.Sprintf("tool %q declares backend %q, batch is for %q", desc.Name, desc.BackendID, backendID), nil)
		}
		if err := validateDescriptor(desc); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for _, desc := range descs {
		c.registerLocked(desc)
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.observeCount(count)
	for _, desc := range descs {
		c.persistTool(ctx, desc)
	}
	return nil
}

func (c *Catalog) registerLocked(desc domain.ToolDescriptor) {
	seq := c.nextSeq
	c.nextSeq++

	if _, exists := c.entries[desc.Name]; exists {
		c.removeFromOrderLocked(desc.Name)
	}
	c.entries[desc.Name] = &entry{desc: desc, seq: seq}
	c.order = append(c.order, desc.Name)

	if c.index != nil {
		c.index.Add(desc)
	}
	if c.tracker != nil {
		c.tracker.Track(desc.Name, seq)
	}
}

// DeregisterBackend removes every descriptor owned by the backend, plus
// its index documents and usage counters, as one unit. A search that
// starts after this returns never sees the backend's former tools.
func (c *Catalog) DeregisterBackend(ctx context.Context, backendID string) error {
	c.mu.Lock()
	var removed []string
	for name, e := range c.entries {
		if e.desc.BackendID == backendID {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(c.entries, name)
		c.removeFromOrderLocked(name)
		if c.index != nil {
			c.index.Remove(name)
		}
		if c.tracker != nil {
			c.tracker.Drop(name)
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.observeCount(count)
	if c.store != nil {
		if err := c.store.RemoveToolsByBackend(ctx, backendID); err != nil {
			c.logger.Warn("store remove failed", zap.String("backend", backendID), zap.Error(err))
		}
	}
	c.logger.Info("backend deregistered", zap.String("backend", backendID), zap.Int("tools", len(removed)))
	return nil
}

// Restore rebuilds the catalog from the persistent store at process
// start. Restored descriptors are not written back.
func (c *Catalog) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	descs, err := c.store.LoadAllTools(ctx)
	if err != nil {
		return fmt.Errorf("load persisted tools: %w", err)
	}

	c.mu.Lock()
	for _, desc := range descs {
		if err := validateDescriptor(desc); err != nil {
			c.logger.Warn("skip persisted tool",
				telemetry.EventField(telemetry.EventRegisterFailure),
				telemetry.ToolField(desc.Name),
				zap.Error(err),
			)
			continue
		}
		c.registerLocked(desc)
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.seedUsage(ctx)
	c.observeCount(count)
	c.logger.Info("catalog restored", zap.Int("tools", count))
	return nil
}

// seedUsage replays persisted usage counters into the tracker so the
// essential tier does not start cold after a restart. Counters for
// tools no longer registered are left behind in the store and ignored.
func (c *Catalog) seedUsage(ctx context.Context) {
	if c.tracker == nil {
		return
	}
	usage, err := c.store.LoadAllUsage(ctx)
	if err != nil {
		c.logger.Warn("load persisted usage failed", zap.Error(err))
		return
	}
	for name, snap := range usage {
		if _, ok := c.Get(name); !ok {
			continue
		}
		c.tracker.Seed(name, snap.Count, snap.LastUsed)
	}
}

// Get returns the descriptor registered under name.
func (c *Catalog) Get(name string) (domain.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return domain.ToolDescriptor{}, false
	}
	return e.desc, true
}

// All returns every descriptor in registration order.
func (c *Catalog) All() []domain.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ToolDescriptor, 0, len(c.order))
	for _, name := range c.order {
		if e, ok := c.entries[name]; ok {
			out = append(out, e.desc)
		}
	}
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Search runs a ranked query against the index. An inconsistent index is
// self-healed: the index is rebuilt from the current descriptor set and
// the search retried once. Inconsistency never reaches the caller.
func (c *Catalog) Search(queryText string, limit int) ([]domain.Hit, error) {
	if c.index == nil {
		return nil, nil
	}
	hits, err := c.index.Search(queryText, limit)
	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, domain.ErrIndexInconsistent) {
		return nil, err
	}

	c.logger.Warn("index inconsistency detected, rebuilding",
		telemetry.EventField(telemetry.EventIndexRebuild),
		zap.Error(err),
	)
	c.rebuildIndex()

	hits, err = c.index.Search(queryText, limit)
	if err != nil {
		c.logger.Warn("search failed after index rebuild",
			telemetry.EventField(telemetry.EventSearchError),
			zap.Error(err),
		)
		return nil, domain.E(domain.CodeInternal, "catalog.Search", "search failed after index rebuild", err)
	}
	return hits, nil
}

// rebuildIndex resets the index and replays every descriptor in
// registration order, holding the write lock so no search observes a
// partially rebuilt index.
func (c *Catalog) rebuildIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Reset()
	for _, name := range c.order {
		if e, ok := c.entries[name]; ok {
			c.index.Add(e.desc)
		}
	}
}

func (c *Catalog) removeFromOrderLocked(name string) {
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Catalog) persistTool(ctx context.Context, desc domain.ToolDescriptor) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveTool(ctx, desc); err != nil {
		c.logger.Warn("store save failed", zap.String("tool", desc.Name), zap.Error(err))
	}
}

func (c *Catalog) observeCount(count int) {
	if c.metrics != nil {
		c.metrics.SetRegisteredTools(count)
	}
}

func validateDescriptor(desc domain.ToolDescriptor) error {
	if desc.Name == "" {
		return domain.E(domain.CodeInvalidArgument, "catalog.Register", "tool name is required", nil)
	}
	if desc.BackendID == "" {
		return domain.E(domain.CodeInvalidArgument, "catalog.Register",
			fmt.Sprintf("tool %q has no owning backend", desc.Name), nil)
	}
	if len(desc.InputSchema) == 0 {
		return nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(desc.InputSchema, &schema); err != nil {
		return domain.E(domain.CodeInvalidArgument, "catalog.Register",
			fmt.Sprintf("tool %q has malformed input schema", desc.Name), err)
	}
	if _, err := schema.Resolve(nil); err != nil {
		return domain.E(domain.CodeInvalidArgument, "catalog.Register",
			fmt.Sprintf("tool %q input schema does not resolve", desc.Name), err)
	}
	return nil
}
