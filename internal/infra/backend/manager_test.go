package backend

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

type nopConn struct{}

func (nopConn) Send(context.Context, string, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeDeregistry struct {
	calls []string
	err   error
}

func (f *fakeDeregistry) DeregisterBackend(_ context.Context, backendID string) error {
	f.calls = append(f.calls, backendID)
	return f.err
}

func echoHandler(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegisterInternal_AlwaysConnected(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.RegisterInternal("builtin", map[string]domain.ToolHandler{"echo": echoHandler}))

	dispatch, err := m.Resolve("builtin", "echo")
	require.NoError(t, err)
	require.Equal(t, domain.BackendInternal, dispatch.Kind)
	require.Equal(t, domain.BackendConnected, dispatch.State)
	require.NotNil(t, dispatch.Handler)
}

func TestRegisterInternal_MergesHandlerTables(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.RegisterInternal("builtin", map[string]domain.ToolHandler{"echo": echoHandler}))
	require.NoError(t, m.RegisterInternal("builtin", map[string]domain.ToolHandler{"time_now": echoHandler}))

	_, err := m.Resolve("builtin", "echo")
	require.NoError(t, err)
	_, err = m.Resolve("builtin", "time_now")
	require.NoError(t, err)
}

func TestRegisterInternal_RejectsKindConflict(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.AddExternal("shared", nopConn{}))

	err := m.RegisterInternal("shared", map[string]domain.ToolHandler{"echo": echoHandler})
	require.Error(t, err)
}

func TestResolve_InternalMissingHandlerIsInternalError(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.RegisterInternal("builtin", map[string]domain.ToolHandler{"echo": echoHandler}))

	_, err := m.Resolve("builtin", "not_registered")
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInternal, code)
}

func TestResolve_UnknownBackendIsUnavailable(t *testing.T) {
	m := NewManager(nil, nil)

	_, err := m.Resolve("ghost", "any_tool")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestTransition_LegalPath(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.AddExternal("ext", nopConn{}))

	states := []domain.BackendState{
		domain.BackendConnecting,
		domain.BackendConnected,
		domain.BackendDisconnecting,
		domain.BackendDisconnected,
	}
	for _, next := range states {
		require.NoError(t, m.Transition("ext", next))
		got, err := m.State("ext")
		require.NoError(t, err)
		require.Equal(t, next, got)
	}
}

func TestTransition_FailedDialReturnsToDisconnected(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.AddExternal("ext", nopConn{}))

	require.NoError(t, m.Transition("ext", domain.BackendConnecting))
	require.NoError(t, m.Transition("ext", domain.BackendDisconnected))
}

func TestTransition_IllegalJumpRejected(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.AddExternal("ext", nopConn{}))

	err := m.Transition("ext", domain.BackendConnected)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, stateErr := m.State("ext")
	require.NoError(t, stateErr)
	require.Equal(t, domain.BackendDisconnected, got)
}

func TestTransition_InternalBackendRejected(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.RegisterInternal("builtin", nil))

	err := m.Transition("builtin", domain.BackendConnecting)
	require.Error(t, err)
}

func TestAddExternal_DuplicateRejected(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.AddExternal("ext", nopConn{}))
	require.Error(t, m.AddExternal("ext", nopConn{}))
}

func TestRemove_TearsDownThroughDeregistry(t *testing.T) {
	dereg := &fakeDeregistry{}
	m := NewManager(dereg, nil)
	require.NoError(t, m.AddExternal("ext", nopConn{}))

	require.NoError(t, m.Remove(context.Background(), "ext"))
	require.Equal(t, []string{"ext"}, dereg.calls)

	_, err := m.State("ext")
	require.ErrorIs(t, err, domain.ErrBackendNotFound)
}

func TestRemove_UnknownBackend(t *testing.T) {
	m := NewManager(&fakeDeregistry{}, nil)
	err := m.Remove(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrBackendNotFound)
}
