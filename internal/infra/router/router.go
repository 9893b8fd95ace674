// Package router resolves invocation requests against the catalog and
// dispatches them to the owning backend with a bounded timeout.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/audit"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/loader"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/usage"
)

type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics domain.Metrics
	Store   domain.Store
	Audit   *audit.Log
}

type Router struct {
	catalog  *catalog.Catalog
	loader   *loader.Loader
	backends domain.Backends
	tracker  *usage.Tracker
	store    domain.Store
	audit    *audit.Log
	metrics  domain.Metrics
	logger   *zap.Logger

	mu      sync.RWMutex
	timeout time.Duration
}

func New(cat *catalog.Catalog, ld *loader.Loader, backends domain.Backends, tracker *usage.Tracker, opts Options) *Router {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultInvokeTimeoutSeconds) * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		catalog:  cat,
		loader:   ld,
		backends: backends,
		tracker:  tracker,
		store:    opts.Store,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger.Named("router"),
		timeout:  timeout,
	}
}

// SetTimeout swaps the invocation deadline. Used by config hot-reload.
func (r *Router) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	r.mu.Lock()
	r.timeout = timeout
	r.mu.Unlock()
}

func (r *Router) currentTimeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeout
}

// ListTools returns the layered tool selection for an optional query
// hint, with backend-private fields stripped. An empty catalog yields an
// empty slice, never an error.
func (r *Router) ListTools(ctx context.Context, queryHint string) ([]domain.ToolDescriptor, error) {
	result, err := r.loader.Load(ctx, queryHint)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ToolDescriptor, 0, len(result.Essential)+len(result.Relevant))
	for _, d := range result.Essential {
		out = append(out, d.Public())
	}
	for _, d := range result.Relevant {
		out = append(out, d.Public())
	}
	return out, nil
}

// AllTools returns every registered descriptor in registration order,
// with backend-private fields stripped. The gateway uses this to keep
// the on-demand tier callable by exact name.
func (r *Router) AllTools() []domain.ToolDescriptor {
	all := r.catalog.All()
	out := make([]domain.ToolDescriptor, len(all))
	for i, d := range all {
		out[i] = d.Public()
	}
	return out
}

// Load exposes the full layered result including strategy metadata.
func (r *Router) Load(ctx context.Context, queryHint string) (domain.LoadingResult, error) {
	return r.loader.Load(ctx, queryHint)
}

// Invoke routes one tool call to its owning backend. Semantics are
// at-most-once: a timed-out call is recorded as a failure and never
// retried here. Every attempt leaves an audit entry.
func (r *Router) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	start := time.Now()

	desc, ok := r.catalog.Get(name)
	if !ok {
		err := domain.Wrap(domain.CodeNotFound, "router.Invoke",
			fmt.Errorf("%w: %s", domain.ErrToolNotFound, name))
		r.finish(name, "", domain.BackendKind(""), start, err)
		return nil, err
	}

	dispatch, err := r.backends.Resolve(desc.BackendID, name)
	if err != nil {
		r.finish(name, desc.BackendID, domain.BackendKind(""), start, err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.currentTimeout())
	defer cancel()

	var result json.RawMessage
	switch dispatch.Kind {
	case domain.BackendInternal:
		result, err = dispatch.Handler(callCtx, args)
	case domain.BackendExternal:
		if dispatch.State != domain.BackendConnected {
			err = domain.Wrap(domain.CodeUnavailable, "router.Invoke",
				fmt.Errorf("%w: backend %s is %s", domain.ErrBackendUnavailable, desc.BackendID, dispatch.State))
		} else {
			result, err = sendBounded(callCtx, dispatch.Conn, name, args)
		}
	default:
		err = domain.E(domain.CodeInternal, "router.Invoke",
			fmt.Sprintf("unknown backend kind %q", dispatch.Kind), nil)
	}

	if err != nil {
		err = classify(err, name)
		r.finish(name, desc.BackendID, dispatch.Kind, start, err)
		return nil, err
	}

	r.recordUsage(ctx, name)
	r.finish(name, desc.BackendID, dispatch.Kind, start, nil)
	return result, nil
}

// sendBounded forwards the call over the connection without letting a
// misbehaving Send hold the caller past the deadline. The send goroutine
// owns a buffered channel so an abandoned result cannot block it.
func sendBounded(ctx context.Context, conn domain.Conn, name string, args json.RawMessage) (json.RawMessage, error) {
	type sendResult struct {
		data json.RawMessage
		err  error
	}
	ch := make(chan sendResult, 1)
	go func() {
		data, err := conn.Send(ctx, name, args)
		ch <- sendResult{data: data, err: err}
	}()
	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classify(err error, name string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Wrap(domain.CodeDeadlineExceeded, "router.Invoke",
			fmt.Errorf("%w: %s", domain.ErrInvokeTimeout, name))
	case errors.Is(err, context.Canceled):
		return domain.Wrap(domain.CodeUnavailable, "router.Invoke", err)
	default:
		return domain.Wrap(domain.CodeInternal, "router.Invoke", err)
	}
}

func (r *Router) recordUsage(ctx context.Context, name string) {
	if r.tracker != nil {
		r.tracker.Record(name)
	}
	if r.store != nil {
		if err := r.store.RecordUsage(ctx, name, time.Now()); err != nil {
			r.logger.Warn("usage write-through failed", telemetry.ToolField(name), zap.Error(err))
		}
	}
}

func (r *Router) finish(name, backendID string, kind domain.BackendKind, start time.Time, err error) {
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.ObserveInvoke(kind, elapsed, err)
	}
	if r.audit != nil {
		entry := domain.AuditEntry{
			ID:      uuid.NewString(),
			Tool:    name,
			Backend: backendID,
			At:      start,
			OK:      err == nil,
			Elapsed: elapsed,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		r.audit.Append(entry)
	}

	if err != nil {
		r.logger.Warn("invoke failed",
			telemetry.EventField(telemetry.EventInvokeError),
			telemetry.ToolField(name),
			telemetry.BackendField(backendID),
			telemetry.DurationField(elapsed),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("invoke completed",
		telemetry.ToolField(name),
		telemetry.BackendField(backendID),
		telemetry.DurationField(elapsed),
	)
}
