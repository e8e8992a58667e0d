// Package mcpserver exposes the marketplace to agents as MCP tools over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/internal/marketplace"
	"github.com/akhaire21/marktools/internal/search"
	"github.com/akhaire21/marktools/internal/session"
	"github.com/akhaire21/marktools/internal/version"
	"github.com/akhaire21/marktools/pkg/models"
)

// Service is the marketplace surface the tools call.
// *marketplace.Marketplace implements it.
type Service interface {
	Search(ctx context.Context, task string, so search.SearchOptions) (*models.SearchPlan, error)
	Estimate(ctx context.Context, req marketplace.EstimateRequest) (*marketplace.EstimateResponse, error)
	Buy(ctx context.Context, sessionID, solutionID string) (*marketplace.Receipt, error)
}

// Tool names.
const (
	ToolSearch   = "search_workflows"
	ToolEstimate = "estimate"
	ToolBuy      = "buy"
)

// Server wraps an MCP server bound to a marketplace.
type Server struct {
	mcpServer *server.MCPServer
	svc       Service
	tools     []mcp.Tool
	log       logging.Logger
}

// NewServer creates a Server and registers its tools.
func NewServer(svc Service, log logging.Logger) *Server {
	s := &Server{svc: svc, log: logging.OrNop(log)}

	mcpServer := server.NewMCPServer(
		"marktools",
		version.Get(),
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// getArgs extracts arguments from request as map[string]any
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool(ToolSearch,
		mcp.WithDescription("Find the best workflow, or composition of workflows, for a task with its cost breakdown, without opening a purchase session"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Natural language description of the task"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum recursive refinement depth (default from configuration, capped by the configured limit)"),
		),
		mcp.WithBoolean("require_close_match",
			mcp.Description("Return nothing when the best match scores below the minimum acceptable score"),
		),
	)
	s.addTool(mcpServer, searchTool, s.handleSearch)

	estimateTool := mcp.NewTool(ToolEstimate,
		mcp.WithDescription("Search for a task and return priced solution summaries plus a session_id for buying one of them"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language description of the task. Personal data is redacted before searching."),
		),
		mcp.WithObject("context",
			mcp.Description("Optional structured details such as state or year. Sensitive fields stay local."),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of solutions (default 5)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum recursive refinement depth"),
		),
		mcp.WithBoolean("require_close_match",
			mcp.Description("Return no solutions when nothing matches closely enough"),
		),
	)
	s.addTool(mcpServer, estimateTool, s.handleEstimate)

	buyTool := mcp.NewTool(ToolBuy,
		mcp.WithDescription("Purchase a solution from an estimate and receive the full workflows in execution order"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by estimate"),
		),
		mcp.WithString("solution_id",
			mcp.Required(),
			mcp.Description("Solution to buy, e.g. sol_1"),
		),
	)
	s.addTool(mcpServer, buyTool, s.handleBuy)
}

func (s *Server) addTool(mcpServer *server.MCPServer, tool mcp.Tool, handler server.ToolHandlerFunc) {
	mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool)
}

// Tools returns the registered tool definitions.
func (s *Server) Tools() []mcp.Tool {
	return s.tools
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	task, _ := args["task"].(string)
	if task == "" {
		return mcp.NewToolResultError("task parameter is required"), nil
	}

	so := search.DefaultSearchOptions()
	if depth, ok := intArg(args, "max_depth"); ok {
		so.MaxDepth = depth
	}
	so.RequireCloseMatch, _ = args["require_close_match"].(bool)

	plan, err := s.svc.Search(ctx, task, so)
	if err != nil {
		return s.toolError("search", err), nil
	}
	return jsonResult(plan)
}

func (s *Server) handleEstimate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	req := marketplace.EstimateRequest{Query: query}
	req.Context, _ = args["context"].(map[string]any)
	if topK, ok := intArg(args, "top_k"); ok {
		req.TopK = topK
	}
	if depth, ok := intArg(args, "max_depth"); ok {
		req.MaxDepth = &depth
	}
	req.RequireCloseMatch, _ = args["require_close_match"].(bool)

	resp, err := s.svc.Estimate(ctx, req)
	if err != nil {
		return s.toolError("estimate", err), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleBuy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sessionID, _ := args["session_id"].(string)
	solutionID, _ := args["solution_id"].(string)
	if sessionID == "" || solutionID == "" {
		return mcp.NewToolResultError("session_id and solution_id parameters are required"), nil
	}

	receipt, err := s.svc.Buy(ctx, sessionID, solutionID)
	if err != nil {
		return s.toolError("buy", err), nil
	}
	return jsonResult(receipt)
}

func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	s.log.Log("[mcpserver] %s failed: %v", op, err)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return mcp.NewToolResultError("session not found or expired; call estimate first")
	case errors.Is(err, session.ErrSolutionNotFound):
		return mcp.NewToolResultError("solution not found in this session")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
	}
}

// intArg reads a JSON number argument.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves the tools on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	s.log.Log("[mcpserver] serving %d tools on stdio", len(s.tools))
	return server.ServeStdio(s.mcpServer)
}
