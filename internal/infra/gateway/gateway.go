// Package gateway exposes the engine to a calling orchestrator as an MCP
// server over stdio. The listing surface is layered: only the current
// essential and relevant tiers are advertised, the find_tools meta tool
// searches the full catalog, and every catalog tool stays registered on
// the server so it remains callable by exact name.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/router"
)

const (
	serverName    = "toolgate"
	serverVersion = "0.1.0"

	findToolsName = "find_tools"
)

type Options struct {
	Refresh time.Duration
	Logger  *zap.Logger
}

type Gateway struct {
	router   *router.Router
	refresh  time.Duration
	logger   *zap.Logger
	server   *mcp.Server
	registry *toolRegistry
}

func New(r *router.Router, opts Options) *Gateway {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = time.Duration(domain.DefaultToolRefreshSeconds) * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		router:  r,
		refresh: refresh,
		logger:  logger.Named("gateway"),
	}
}

// Run serves MCP over stdio until the context is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.buildServer()
	g.refreshSelection(runCtx)
	go g.refreshLoop(runCtx)

	return g.server.Run(runCtx, &mcp.StdioTransport{})
}

func (g *Gateway) buildServer() {
	g.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, &mcp.ServerOptions{
		HasTools: true,
	})
	g.registry = newToolRegistry(g.server, g.toolHandler, []string{findToolsName}, g.logger)
	g.server.AddTool(findToolsTool(), g.findToolsHandler)
	g.server.AddReceivingMiddleware(g.registry.listFilter())
}

func (g *Gateway) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(g.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshSelection(ctx)
		}
	}
}

// refreshSelection re-applies the layered selection for an empty query
// hint, so the advertised tool set follows usage as it accumulates. The
// full catalog is synced for callability; only the selection is
// advertised.
func (g *Gateway) refreshSelection(ctx context.Context) {
	selection, err := g.router.ListTools(ctx, "")
	if err != nil {
		g.logger.Warn("refresh selection failed", zap.Error(err))
		return
	}
	g.registry.Sync(g.router.AllTools())
	g.registry.Advertise(selection)
}

func (g *Gateway) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := json.RawMessage(req.Params.Arguments)
		result, err := g.router.Invoke(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(result)}},
		}, nil
	}
}

func findToolsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        findToolsName,
		Description: "Search the full tool catalog with a natural-language query and get back the most relevant tools. Any returned tool can then be called directly by name.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What you are trying to do, in plain words.",
				},
			},
			"required": []string{"query"},
		},
	}
}

type findToolsResponse struct {
	Strategy  domain.LoadStrategy     `json:"strategy"`
	ElapsedMs int64                   `json:"elapsedMs"`
	Essential []domain.ToolDescriptor `json:"essential"`
	Relevant  []domain.ToolDescriptor `json:"relevant"`
	OnDemand  int                     `json:"onDemand"`
}

func (g *Gateway) findToolsHandler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Query json.RawMessage `json:"query"`
	}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, domain.Wrap(domain.CodeInvalidArgument, "gateway.findTools",
				fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err))
		}
	}
	var query string
	if len(args.Query) > 0 {
		if err := json.Unmarshal(args.Query, &query); err != nil {
			return nil, domain.Wrap(domain.CodeInvalidArgument, "gateway.findTools",
				fmt.Errorf("%w: query must be a string", domain.ErrInvalidQuery))
		}
	}

	result, err := g.router.Load(ctx, query)
	if err != nil {
		return nil, err
	}

	resp := findToolsResponse{
		Strategy:  result.Strategy,
		ElapsedMs: result.Elapsed.Milliseconds(),
		Essential: publicAll(result.Essential),
		Relevant:  publicAll(result.Relevant),
		OnDemand:  result.OnDemand,
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}

func publicAll(descs []domain.ToolDescriptor) []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, len(descs))
	for i, d := range descs {
		out[i] = d.Public()
	}
	return out
}
