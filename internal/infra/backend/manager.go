// Package backend tracks the backends that own tools: in-process handler
// tables and external connections with their lifecycle state. The router
// resolves dispatch targets here but never drives state itself.
package backend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

// Deregistry is the catalog surface the manager calls during teardown so
// a backend's descriptors and usage records disappear as one unit.
type Deregistry interface {
	DeregisterBackend(ctx context.Context, backendID string) error
}

type backendEntry struct {
	id       string
	kind     domain.BackendKind
	state    domain.BackendState
	handlers map[string]domain.ToolHandler
	conn     domain.Conn
}

type Manager struct {
	mu         sync.RWMutex
	backends   map[string]*backendEntry
	deregistry Deregistry
	logger     *zap.Logger
}

func NewManager(deregistry Deregistry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backends:   make(map[string]*backendEntry),
		deregistry: deregistry,
		logger:     logger.Named("backend"),
	}
}

// RegisterInternal installs an in-process handler table. Internal
// backends have no connection lifecycle and are always connected.
func (m *Manager) RegisterInternal(id string, handlers map[string]domain.ToolHandler) error {
	if id == "" {
		return domain.E(domain.CodeInvalidArgument, "backend.RegisterInternal", "backend id is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.backends[id]; ok {
		if existing.kind != domain.BackendInternal {
			return domain.E(domain.CodeInvalidArgument, "backend.RegisterInternal",
				fmt.Sprintf("backend %q is already registered as %s", id, existing.kind), nil)
		}
		for name, fn := range handlers {
			existing.handlers[name] = fn
		}
		return nil
	}
	table := make(map[string]domain.ToolHandler, len(handlers))
	for name, fn := range handlers {
		table[name] = fn
	}
	m.backends[id] = &backendEntry{
		id:       id,
		kind:     domain.BackendInternal,
		state:    domain.BackendConnected,
		handlers: table,
	}
	return nil
}

// AddExternal registers an external backend in the disconnected state.
// The connection-establishment collaborator drives it to connected via
// Transition.
func (m *Manager) AddExternal(id string, conn domain.Conn) error {
	if id == "" {
		return domain.E(domain.CodeInvalidArgument, "backend.AddExternal", "backend id is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backends[id]; ok {
		return domain.E(domain.CodeInvalidArgument, "backend.AddExternal",
			fmt.Sprintf("backend %q is already registered", id), nil)
	}
	m.backends[id] = &backendEntry{
		id:    id,
		kind:  domain.BackendExternal,
		state: domain.BackendDisconnected,
		conn:  conn,
	}
	return nil
}

// legalTransitions encodes Disconnected -> Connecting -> Connected ->
// Disconnecting -> Disconnected, plus Connecting -> Disconnected for a
// failed dial.
var legalTransitions = map[domain.BackendState][]domain.BackendState{
	domain.BackendDisconnected:  {domain.BackendConnecting},
	domain.BackendConnecting:    {domain.BackendConnected, domain.BackendDisconnected},
	domain.BackendConnected:     {domain.BackendDisconnecting},
	domain.BackendDisconnecting: {domain.BackendDisconnected},
}

// Transition moves an external backend through its state machine.
func (m *Manager) Transition(id string, to domain.BackendState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.backends[id]
	if !ok {
		return domain.Wrap(domain.CodeNotFound, "backend.Transition",
			fmt.Errorf("%w: %s", domain.ErrBackendNotFound, id))
	}
	if entry.kind == domain.BackendInternal {
		return domain.E(domain.CodeInvalidArgument, "backend.Transition",
			fmt.Sprintf("backend %q is internal and has no connection state", id), nil)
	}
	for _, allowed := range legalTransitions[entry.state] {
		if allowed == to {
			m.logger.Info("backend state changed",
				zap.String("backend", id),
				zap.String("from", string(entry.state)),
				zap.String("to", string(to)),
			)
			entry.state = to
			return nil
		}
	}
	return domain.Wrap(domain.CodeInvalidArgument, "backend.Transition",
		fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, entry.state, to))
}

// State returns the current lifecycle state of a backend.
func (m *Manager) State(id string) (domain.BackendState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.backends[id]
	if !ok {
		return "", domain.Wrap(domain.CodeNotFound, "backend.State",
			fmt.Errorf("%w: %s", domain.ErrBackendNotFound, id))
	}
	return entry.state, nil
}

// Resolve returns the dispatch target for one tool invocation. The
// router switches on the returned kind; state is read here once so the
// decision is consistent for the whole call.
func (m *Manager) Resolve(backendID, tool string) (domain.Dispatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.backends[backendID]
	if !ok {
		// A tool can outlive its backend across restarts; treat the
		// missing backend as unavailable rather than unknown.
		return domain.Dispatch{}, domain.Wrap(domain.CodeUnavailable, "backend.Resolve",
			fmt.Errorf("%w: backend %s is not registered", domain.ErrBackendUnavailable, backendID))
	}
	dispatch := domain.Dispatch{
		BackendID: backendID,
		Kind:      entry.kind,
		State:     entry.state,
		Conn:      entry.conn,
	}
	if entry.kind == domain.BackendInternal {
		handler, ok := entry.handlers[tool]
		if !ok {
			return domain.Dispatch{}, domain.E(domain.CodeInternal, "backend.Resolve",
				fmt.Sprintf("backend %q has no handler for tool %q", backendID, tool), nil)
		}
		dispatch.Handler = handler
	}
	return dispatch, nil
}

// Remove tears a backend down: it enters disconnecting, its descriptors
// and usage records are removed from the catalog as one unit, then the
// entry is dropped.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	entry, ok := m.backends[id]
	if !ok {
		m.mu.Unlock()
		return domain.Wrap(domain.CodeNotFound, "backend.Remove",
			fmt.Errorf("%w: %s", domain.ErrBackendNotFound, id))
	}
	entry.state = domain.BackendDisconnecting
	m.mu.Unlock()

	if m.deregistry != nil {
		if err := m.deregistry.DeregisterBackend(ctx, id); err != nil {
			m.logger.Warn("deregister failed during teardown", zap.String("backend", id), zap.Error(err))
		}
	}

	m.mu.Lock()
	if entry, ok := m.backends[id]; ok {
		entry.state = domain.BackendDisconnected
		delete(m.backends, id)
	}
	m.mu.Unlock()

	m.logger.Info("backend removed",
		telemetry.EventField(telemetry.EventBackendRemoved),
		telemetry.BackendField(id),
	)
	return nil
}
