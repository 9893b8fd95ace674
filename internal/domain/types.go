package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolDescriptor describes a callable tool. It is immutable after
// registration; re-registering the same name replaces the prior entry.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	BackendID   string          `json:"backendId"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// SearchableText returns the text that feeds the ranked index.
func (d ToolDescriptor) SearchableText() string {
	text := d.Description
	for _, kw := range d.Keywords {
		text += " " + kw
	}
	if d.Category != "" {
		text += " " + d.Category
	}
	return text
}

// Public returns a copy with backend-private fields stripped, suitable
// for returning to the calling orchestrator.
func (d ToolDescriptor) Public() ToolDescriptor {
	d.BackendID = ""
	return d
}

// ToolHandler executes an internally registered tool.
type ToolHandler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// BackendKind distinguishes how a tool invocation is dispatched.
type BackendKind string

const (
	// BackendInternal dispatches to an in-process handler function.
	BackendInternal BackendKind = "internal"
	// BackendExternal dispatches over a connection to another process.
	BackendExternal BackendKind = "external"
)

// BackendState is the lifecycle state of a backend connection.
type BackendState string

const (
	BackendDisconnected  BackendState = "disconnected"
	BackendConnecting    BackendState = "connecting"
	BackendConnected     BackendState = "connected"
	BackendDisconnecting BackendState = "disconnecting"
)

// Conn is the transport primitive for an external backend. Connection
// establishment and process spawning live outside the core; the router
// only reads state and calls Send.
type Conn interface {
	Send(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error)
}

// Dispatch is the resolved target for one tool invocation. Exactly one
// of Handler or Conn is set, selected by Kind.
type Dispatch struct {
	BackendID string
	Kind      BackendKind
	State     BackendState
	Handler   ToolHandler
	Conn      Conn
}

// Backends resolves dispatch targets for registered backends.
type Backends interface {
	Resolve(backendID, tool string) (Dispatch, error)
}

// Hit is one ranked search result.
type Hit struct {
	Name  string
	Score float64
}

// QueryIntent is a coarse classification of a free-text request. It is
// used for logging only and never alters ranking.
type QueryIntent string

const (
	IntentLookup  QueryIntent = "lookup"
	IntentAction  QueryIntent = "action"
	IntentUnknown QueryIntent = "unknown"
)

// ProcessedQuery is the normalized form of a free-text request.
type ProcessedQuery struct {
	Original string
	Tokens   []string
	Intent   QueryIntent
	Enhanced string
}

// LoadStrategy labels how a LoadingResult was computed.
type LoadStrategy string

const (
	StrategyUsageOnly    LoadStrategy = "usage-only"
	StrategyBM25         LoadStrategy = "bm25"
	StrategyFallbackFull LoadStrategy = "fallback-full"
)

// LoadingResult is the layered tool selection for one listing request.
// Essential and Relevant are disjoint; the rest of the catalog stays
// reachable by direct name lookup.
type LoadingResult struct {
	Essential []ToolDescriptor
	Relevant  []ToolDescriptor
	OnDemand  int
	Strategy  LoadStrategy
	Elapsed   time.Duration
}

// UsageSnapshot is a point-in-time view of one tool's usage counters.
type UsageSnapshot struct {
	Name     string
	Count    uint64
	LastUsed time.Time
}

// AuditEntry records the outcome of one invocation attempt.
type AuditEntry struct {
	ID      string        `json:"id"`
	Tool    string        `json:"tool"`
	Backend string        `json:"backend,omitempty"`
	At      time.Time     `json:"at"`
	OK      bool          `json:"ok"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}
