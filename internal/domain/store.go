package domain

import (
	"context"
	"time"
)

// Store is the persistence collaborator. The catalog writes through to it
// on every mutation and rebuilds from it at process start; it is never
// authoritative at runtime.
type Store interface {
	LoadAllTools(ctx context.Context) ([]ToolDescriptor, error)
	SaveTool(ctx context.Context, desc ToolDescriptor) error
	RemoveToolsByBackend(ctx context.Context, backendID string) error
	RecordUsage(ctx context.Context, name string, at time.Time) error
	LoadAllUsage(ctx context.Context) (map[string]UsageSnapshot, error)
	Close() error
}
