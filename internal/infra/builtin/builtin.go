// Package builtin registers the gateway's own in-process tools. It is
// also the reference for how feature providers hook into the catalog:
// install a handler table on the backend manager, then register the
// descriptors as one batch.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toolgate/internal/domain"
	"toolgate/internal/infra/backend"
	"toolgate/internal/infra/catalog"
)

const BackendID = "builtin"

func Register(ctx context.Context, cat *catalog.Catalog, mgr *backend.Manager) error {
	handlers := map[string]domain.ToolHandler{
		"echo":          echoHandler,
		"time_now":      timeNowHandler,
		"catalog_stats": statsHandler(cat),
	}
	if err := mgr.RegisterInternal(BackendID, handlers); err != nil {
		return err
	}

	descs := []domain.ToolDescriptor{
		{
			Name:        "echo",
			Description: "Echo the provided text back to the caller.",
			Category:    "utility",
			Keywords:    []string{"echo", "repeat", "text"},
			BackendID:   BackendID,
			InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		},
		{
			Name:        "time_now",
			Description: "Return the current time in RFC 3339 format.",
			Category:    "utility",
			Keywords:    []string{"time", "clock", "now", "date"},
			BackendID:   BackendID,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		},
		{
			Name:        "catalog_stats",
			Description: "Report how many tools are currently registered in the catalog.",
			Category:    "introspection",
			Keywords:    []string{"catalog", "stats", "tools", "count"},
			BackendID:   BackendID,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		},
	}
	return cat.RegisterBatch(ctx, BackendID, descs)
}

func echoHandler(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode echo args: %w", err)
	}
	return json.Marshal(map[string]string{"text": in.Text})
}

func timeNowHandler(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"now": time.Now().Format(time.RFC3339)})
}

func statsHandler(cat *catalog.Catalog) domain.ToolHandler {
	return func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]int{"registeredTools": cat.Len()})
	}
}
