package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/agentmem/internal/facade"
	"github.com/aman-cerp/agentmem/pkg/version"
)

// ToolArgs is the input schema shared by all four verb tools: an action
// tag within the verb, plus a free-form argument map (spec §6).
type ToolArgs struct {
	Action string         `json:"action" jsonschema:"the action to perform within this tool"`
	Args   map[string]any `json:"args,omitempty" jsonschema:"action-specific arguments"`
}

// Server bridges MCP clients to the memory core's tool-call façade.
type Server struct {
	mcp    *mcp.Server
	facade *facade.Facade
	logger *slog.Logger
}

// NewServer creates a new MCP server backed by f.
func NewServer(f *facade.Facade) *Server {
	s := &Server{
		facade: f,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "memoryd",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// registerTools registers the four spec §6 verbs as MCP tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "mutate_memory",
		Description: "Create, update, or invalidate entities, observations, and relationships; manage sessions and tasks; run a transaction.",
	}, s.handlerFor("mutate_memory"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_memory",
		Description: "Hybrid search, graph-RAG, multi-hop retrieval, entity lookups, and adaptive agentic retrieval over stored memory.",
	}, s.handlerFor("query_memory"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_graph",
		Description: "Run graph analytics over stored relationships: PageRank, community detection, semantic walks, and shortest paths.",
	}, s.handlerFor("analyze_graph"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "manage_system",
		Description: "Operational actions: health checks, metrics, export/import snapshots, clearing memory, and janitor cleanup.",
	}, s.handlerFor("manage_system"))

	s.logger.Info("mcp tools registered", slog.Int("count", 4))
}

// handlerFor closes over verb and returns an MCP SDK tool handler that
// dispatches through the façade and hands back its Result verbatim.
func (s *Server) handlerFor(verb string) func(context.Context, *mcp.CallToolRequest, ToolArgs) (*mcp.CallToolResult, facade.Result, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ToolArgs) (*mcp.CallToolResult, facade.Result, error) {
		if input.Action == "" {
			return nil, facade.Result{}, NewInvalidParamsError("action is required")
		}
		result := s.facade.Dispatch(ctx, verb, input.Action, facade.Args(input.Args))
		return nil, result, nil
	}
}

// Serve starts the server with the specified transport. Only "stdio" is
// supported; per spec §6's MCP-style surface, stdout is reserved
// exclusively for JSON-RPC traffic once this runs.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting mcp server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp server stopped gracefully")
		}
		return err
	default:
		return NewInvalidParamsError("unknown transport: " + transport)
	}
}
