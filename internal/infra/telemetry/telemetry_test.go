package telemetry

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
	"toolgate/internal/infra/audit"
)

func TestPrometheusMetrics_RegistersAndObserves(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.ObserveInvoke(domain.BackendInternal, 5*time.Millisecond, nil)
	metrics.ObserveInvoke(domain.BackendExternal, 50*time.Millisecond, errors.New("boom"))
	metrics.ObserveInvoke("", time.Millisecond, errors.New("unresolved"))
	metrics.ObserveSearch(time.Millisecond, 3)
	metrics.ObserveLoad(domain.StrategyBM25)
	metrics.SetRegisteredTools(12)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]struct{}, len(families))
	for _, fam := range families {
		names[fam.GetName()] = struct{}{}
	}
	for _, want := range []string{
		"toolgate_invoke_duration_seconds",
		"toolgate_search_duration_seconds",
		"toolgate_search_hits",
		"toolgate_loads_total",
		"toolgate_registered_tools",
	} {
		require.Contains(t, names, want)
	}
}

func TestAuditHandler_ServesRecentEntries(t *testing.T) {
	log := audit.NewLog(8)
	for i := 0; i < 5; i++ {
		log.Append(domain.AuditEntry{ID: string(rune('a' + i)), Tool: "echo", OK: true})
	}

	rec := httptest.NewRecorder()
	auditHandler(log).ServeHTTP(rec, httptest.NewRequest("GET", "/debug/audit?n=2", nil))

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entries []domain.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "e", entries[0].ID)
	require.Equal(t, "d", entries[1].ID)
}
