package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stateflow/internal/store"
	"github.com/rendis/stateflow/pkg/schema"
)

// handleDefine validates and stores a graph definition.
func (s *StateflowServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	def, err := decodeDefinition(defRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	rec, result, defErr := s.svc.DefineGraph(ctx, def)
	if defErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("define failed: %v", defErr)), nil
	}

	return marshalResult(map[string]any{
		"graph_id": rec.ID,
		"name":     rec.Name,
		"warnings": result.Warnings,
	})
}

// handleRun executes a stored graph by name, or an inline definition.
func (s *StateflowServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphName := req.GetString("graph_name", "")
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	initialState := mcp.ParseStringMap(req, "initial_state", nil)

	if graphName == "" && defRaw == nil {
		return mcp.NewToolResultError("either graph_name or definition is required"), nil
	}
	if graphName != "" && defRaw != nil {
		return mcp.NewToolResultError("graph_name and definition are mutually exclusive"), nil
	}

	if graphName != "" {
		run, err := s.svc.RunByName(ctx, graphName, initialState)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	def, err := decodeDefinition(defRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	run, err := s.svc.RunDefinition(ctx, def, initialState)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return marshalResult(run)
}

// handleGetRun fetches a persisted run by ID.
func (s *StateflowServer) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	rec, getErr := s.svc.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get_run failed: %v", getErr)), nil
	}
	return marshalResult(rec)
}

// handleSchedule registers a cron schedule for a stored graph.
func (s *StateflowServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphName, err := req.RequireString("graph_name")
	if err != nil {
		return mcp.NewToolResultError("graph_name is required"), nil
	}
	cronExpr, err := req.RequireString("cron")
	if err != nil {
		return mcp.NewToolResultError("cron is required"), nil
	}

	job := &store.ScheduledJob{
		GraphName:      graphName,
		CronExpression: cronExpr,
		Enabled:        true,
	}
	if initialState := mcp.ParseStringMap(req, "initial_state", nil); initialState != nil {
		raw, marshalErr := json.Marshal(initialState)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid initial_state: %v", marshalErr)), nil
		}
		job.InitialState = raw
	}

	created, schedErr := s.svc.ScheduleGraph(ctx, job)
	if schedErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", schedErr)), nil
	}

	return marshalResult(map[string]any{
		"job_id":     created.ID,
		"graph_name": created.GraphName,
		"cron":       created.CronExpression,
	})
}

// handleQuery lists graphs, runs, or schedules based on filters.
func (s *StateflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "graphs":
		return s.queryGraphs(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "schedules":
		return s.querySchedules(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *StateflowServer) queryGraphs(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	gf := store.GraphFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if name, ok := filter["name"].(string); ok {
		gf.Name = name
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			gf.Since = &t
		}
	}

	graphs, err := s.svc.ListGraphs(ctx, gf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"graphs": graphs})
}

func (s *StateflowServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if graphID, ok := filter["graph_id"].(string); ok {
		rf.GraphID = graphID
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.svc.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *StateflowServer) querySchedules(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	sf := store.ScheduledJobFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if name, ok := filter["graph_name"].(string); ok {
		sf.GraphName = name
	}
	if enabled, ok := filter["enabled"].(bool); ok {
		sf.Enabled = &enabled
	}

	jobs, err := s.svc.ListScheduledJobs(ctx, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"schedules": jobs})
}

// --- Internal helpers ---

// decodeDefinition round-trips a string map through JSON into a GraphDefinition.
func decodeDefinition(raw map[string]any) (*schema.GraphDefinition, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var def schema.GraphDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
