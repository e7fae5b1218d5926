package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stateflow/internal/engine"
	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/internal/store"
	"github.com/rendis/stateflow/internal/tools"
	"github.com/rendis/stateflow/pkg/schema"
)

func newTestService(t *testing.T) (*FlowService, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	exprEng := expressions.NewExprEngine()
	jq := expressions.NewGoJQEngine()

	reg := tools.NewRegistry(logger)
	require.NoError(t, tools.RegisterBuiltins(reg, cel, exprEng, jq))

	st := store.NewMemoryStore()
	exec := engine.NewExecutor(engine.Config{}, logger)

	svc, err := NewFlowService(st, reg, cel, exec, logger)
	require.NoError(t, err)
	return svc, st
}

func doublerDefinition() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Name:       "doubler",
		EntryPoint: "double",
		Nodes: []schema.NodeDefinition{
			{
				ID:        "double",
				Tool:      "cel",
				Params:    json.RawMessage(`{"expression": "int(state.value) * 2"}`),
				ResultKey: "value",
			},
			{
				ID:        "inc",
				Tool:      "cel",
				Params:    json.RawMessage(`{"expression": "int(state.value) + 1"}`),
				ResultKey: "value",
			},
		},
		Edges: []schema.EdgeDefinition{
			{From: "double", To: "inc"},
		},
	}
}

func TestFlowService_DefineAndRunByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, result, err := svc.DefineGraph(ctx, doublerDefinition())
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, rec.ID)

	run, err := svc.RunByName(ctx, "doubler", map[string]any{"value": 10})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(21), run.State["value"])
	assert.Equal(t, rec.ID, run.GraphID)

	// The run is persisted and retrievable.
	stored, err := svc.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, stored.Status)
	assert.Equal(t, rec.ID, stored.GraphID)
}

func TestFlowService_DefineGraph_RejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)

	def := doublerDefinition()
	def.Nodes[0].Tool = "nonexistent"

	_, result, err := svc.DefineGraph(context.Background(), def)
	require.Error(t, err)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeToolNotFound, result.Errors[0].Code)
}

func TestFlowService_DefineGraph_DuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.DefineGraph(ctx, doublerDefinition())
	require.NoError(t, err)

	_, _, err = svc.DefineGraph(ctx, doublerDefinition())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestFlowService_RunByName_UnknownGraph(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RunByName(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestFlowService_RunDefinition_InlineWithoutStoring(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	run, err := svc.RunDefinition(ctx, doublerDefinition(), map[string]any{"value": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(11), run.State["value"])

	graphs, err := st.ListGraphs(ctx, store.GraphFilter{})
	require.NoError(t, err)
	assert.Empty(t, graphs, "inline runs must not store the definition")

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1, "inline runs are still persisted")
}

func TestFlowService_RunGraph_FailedRunIsError(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	def := &schema.GraphDefinition{
		Name:       "divider",
		EntryPoint: "div",
		Nodes: []schema.NodeDefinition{
			{
				ID:        "div",
				Tool:      "cel",
				Params:    json.RawMessage(`{"expression": "10 / int(state.divisor)"}`),
				ResultKey: "quotient",
			},
		},
	}
	_, _, err := svc.DefineGraph(ctx, def)
	require.NoError(t, err)

	// Division by zero fails at evaluation time: the run finishes FAILED,
	// and RunGraph reports that as an error for the scheduler.
	err = svc.RunGraph(ctx, "divider", map[string]any{"divisor": 0})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))

	require.NoError(t, svc.RunGraph(ctx, "divider", map[string]any{"divisor": 2}))
}

func TestFlowService_ConditionalRouting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	def := &schema.GraphDefinition{
		Name:       "triage",
		EntryPoint: "score",
		Nodes: []schema.NodeDefinition{
			{ID: "score", Tool: "cel", Params: json.RawMessage(`{"expression": "int(state.value)"}`), ResultKey: "score"},
			{ID: "high", Tool: "cel", Params: json.RawMessage(`{"expression": "'high'"}`), ResultKey: "route"},
			{ID: "low", Tool: "cel", Params: json.RawMessage(`{"expression": "'low'"}`), ResultKey: "route"},
		},
		Edges: []schema.EdgeDefinition{
			{From: "score", To: "high", Condition: "int(state.score) > 100"},
			{From: "score", To: "low", Condition: "int(state.score) <= 100"},
		},
	}
	_, _, err := svc.DefineGraph(ctx, def)
	require.NoError(t, err)

	run, err := svc.RunByName(ctx, "triage", map[string]any{"value": 150})
	require.NoError(t, err)
	assert.Equal(t, "high", run.State["route"])

	run, err = svc.RunByName(ctx, "triage", map[string]any{"value": 50})
	require.NoError(t, err)
	assert.Equal(t, "low", run.State["route"])
}

func TestFlowService_ScheduleGraph_RequiresExistingGraph(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ScheduleGraph(ctx, &store.ScheduledJob{
		GraphName:      "ghost",
		CronExpression: "0 * * * *",
		Enabled:        true,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	_, _, err = svc.DefineGraph(ctx, doublerDefinition())
	require.NoError(t, err)

	job, err := svc.ScheduleGraph(ctx, &store.ScheduledJob{
		GraphName:      "doubler",
		CronExpression: "0 * * * *",
		Enabled:        true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	jobs, err := svc.ListScheduledJobs(ctx, store.ScheduledJobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestFlowService_DeleteGraph(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.DefineGraph(ctx, doublerDefinition())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGraph(ctx, "doubler"))
	_, err = svc.GetGraph(ctx, "doubler")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}
