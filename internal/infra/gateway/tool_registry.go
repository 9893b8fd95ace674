package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// toolRegistry keeps the MCP server callable for the whole catalog while
// advertising only the layered selection. Every catalog tool stays
// registered on the server so tools/call by exact name always reaches
// the router, including the on-demand tier; the listing middleware then
// narrows tools/list to the advertised set. Pinned names (the discovery
// meta tool) are always advertised and never removed.
type toolRegistry struct {
	server  *mcp.Server
	handler func(name string) mcp.ToolHandler
	logger  *zap.Logger
	pinned  map[string]struct{}

	mu         sync.Mutex
	registered map[string]struct{}
	advertised map[string]struct{}
}

func newToolRegistry(server *mcp.Server, handler func(name string) mcp.ToolHandler, pinned []string, logger *zap.Logger) *toolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	pin := make(map[string]struct{}, len(pinned))
	for _, name := range pinned {
		pin[name] = struct{}{}
	}
	return &toolRegistry{
		server:     server,
		handler:    handler,
		logger:     logger.Named("tool_registry"),
		pinned:     pin,
		registered: make(map[string]struct{}),
		advertised: make(map[string]struct{}),
	}
}

// Sync mirrors the catalog onto the server: every descriptor gets a
// handler, tools gone from the catalog are removed.
func (r *toolRegistry) Sync(descs []domain.ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]struct{}, len(descs))
	for _, desc := range descs {
		if desc.Name == "" {
			continue
		}
		if _, pinnedName := r.pinned[desc.Name]; pinnedName {
			continue
		}
		r.server.AddTool(toolFromDescriptor(desc), r.handler(desc.Name))
		next[desc.Name] = struct{}{}
	}

	var remove []string
	for name := range r.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		r.server.RemoveTools(remove...)
		r.logger.Debug("tools dropped from server", zap.Strings("tools", remove))
	}

	r.registered = next
}

// Advertise replaces the set of names tools/list exposes.
func (r *toolRegistry) Advertise(descs []domain.ToolDescriptor) {
	next := make(map[string]struct{}, len(descs))
	for _, desc := range descs {
		if desc.Name != "" {
			next[desc.Name] = struct{}{}
		}
	}
	r.mu.Lock()
	r.advertised = next
	r.mu.Unlock()
}

func (r *toolRegistry) isAdvertised(name string) bool {
	if _, ok := r.pinned[name]; ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.advertised[name]
	return ok
}

// listFilter narrows tools/list responses to the advertised set. Calls
// for other methods pass through untouched.
func (r *toolRegistry) listFilter() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			res, err := next(ctx, method, req)
			if err != nil || method != "tools/list" {
				return res, err
			}
			list, ok := res.(*mcp.ListToolsResult)
			if !ok {
				return res, err
			}
			kept := make([]*mcp.Tool, 0, len(list.Tools))
			for _, tool := range list.Tools {
				if r.isAdvertised(tool.Name) {
					kept = append(kept, tool)
				}
			}
			list.Tools = kept
			return list, nil
		}
	}
}

func toolFromDescriptor(desc domain.ToolDescriptor) *mcp.Tool {
	tool := &mcp.Tool{
		Name:        desc.Name,
		Description: desc.Description,
	}
	if len(desc.InputSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(desc.InputSchema, &schema); err == nil {
			tool.InputSchema = schema
			return tool
		}
	}
	tool.InputSchema = map[string]any{"type": "object"}
	return tool
}
