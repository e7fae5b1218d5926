package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stateflow/internal/service"
)

// StateflowServer wraps an MCP server with stateflow-specific tool handlers.
type StateflowServer struct {
	svc       *service.FlowService
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStateflowServer creates a StateflowServer with all tools registered.
func NewStateflowServer(svc *service.FlowService, logger *slog.Logger) *StateflowServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StateflowServer{svc: svc, logger: logger}

	mcpSrv := server.NewMCPServer(
		"stateflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stateflow is a workflow graph execution engine. Use stateflow.define to register a graph, stateflow.run to execute one (stored by name or inline), stateflow.get_run to fetch a run's trace, stateflow.schedule to register a cron schedule, and stateflow.query to list graphs, runs, or schedules."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StateflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StateflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *StateflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: getRunTool(), Handler: s.handleGetRun},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("stateflow.define",
		mcp.WithDescription("Validate and register a reusable graph definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Graph definition object (name, entry_point, nodes, edges)")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("stateflow.run",
		mcp.WithDescription("Execute a graph to completion and return the finished run"),
		mcp.WithString("graph_name", mcp.Description("Name of a stored graph to execute")),
		mcp.WithObject("definition", mcp.Description("Inline graph definition (alternative to graph_name)")),
		mcp.WithObject("initial_state", mcp.Description("Initial state for the run")),
	)
}

func getRunTool() mcp.Tool {
	return mcp.NewTool("stateflow.get_run",
		mcp.WithDescription("Fetch a finished run with its state, visited nodes and step logs"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to fetch")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("stateflow.schedule",
		mcp.WithDescription("Register a cron schedule for a stored graph"),
		mcp.WithString("graph_name", mcp.Required(), mcp.Description("Name of the stored graph to run")),
		mcp.WithString("cron", mcp.Required(), mcp.Description("Cron expression (minute hour dom month dow)")),
		mcp.WithObject("initial_state", mcp.Description("Initial state passed to each scheduled run")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("stateflow.query",
		mcp.WithDescription("Query graphs, runs, or schedules"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("graphs", "runs", "schedules"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name, graph_id, status, since, limit)")),
	)
}
