package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stateflow/internal/engine"
	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/internal/scheduler"
	"github.com/rendis/stateflow/internal/service"
	"github.com/rendis/stateflow/internal/store"
	"github.com/rendis/stateflow/internal/tools"
	"github.com/rendis/stateflow/internal/workflows"
	"github.com/rendis/stateflow/pkg/schema"
)

// --- Test harness ---

type harness struct {
	t     *testing.T
	store *store.LibSQLStore
	svc   *service.FlowService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	reg := tools.NewRegistry(logger)
	require.NoError(t, tools.RegisterBuiltins(reg, cel, expressions.NewExprEngine(), expressions.NewGoJQEngine()))
	require.NoError(t, workflows.RegisterDataQualityTools(reg))

	exec := engine.NewExecutor(engine.Config{}, logger)
	svc, err := service.NewFlowService(s, reg, cel, exec, logger)
	require.NoError(t, err)

	return &harness{t: t, store: s, svc: svc}
}

func (h *harness) define(def *schema.GraphDefinition) *store.GraphRecord {
	h.t.Helper()
	rec, result, err := h.svc.DefineGraph(context.Background(), def)
	require.NoError(h.t, err)
	require.True(h.t, result.Valid())
	return rec
}

func celNode(id, expression, resultKey string) schema.NodeDefinition {
	params, _ := json.Marshal(map[string]any{"expression": expression})
	return schema.NodeDefinition{ID: id, Tool: "cel", Params: params, ResultKey: resultKey}
}

// --- Tests ---

func TestDefineRunFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.define(&schema.GraphDefinition{
		Name:       "pipeline",
		EntryPoint: "double",
		Nodes: []schema.NodeDefinition{
			celNode("double", "int(state.value) * 2", "value"),
			celNode("inc", "int(state.value) + 1", "value"),
		},
		Edges: []schema.EdgeDefinition{{From: "double", To: "inc"}},
	})

	run, err := h.svc.RunByName(ctx, "pipeline", map[string]any{"value": 10})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(21), run.State["value"])
	assert.Equal(t, rec.ID, run.GraphID)
	assert.Equal(t, []string{"double", "inc"}, run.VisitedNodes)

	stored, err := h.svc.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, stored.Status)

	rebuilt, err := stored.ToRun()
	require.NoError(t, err)
	assert.Len(t, rebuilt.Logs, 2)
	assert.Equal(t, float64(21), rebuilt.State["value"]) // numbers round-trip as JSON
}

func TestConditionalRouting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.define(&schema.GraphDefinition{
		Name:       "triage",
		EntryPoint: "score",
		Nodes: []schema.NodeDefinition{
			celNode("score", "int(state.value) * 10", "score"),
			celNode("high", "'escalated'", "outcome"),
			celNode("low", "'archived'", "outcome"),
		},
		Edges: []schema.EdgeDefinition{
			{From: "score", To: "high", Condition: "int(state.score) > 50"},
			{From: "score", To: "low"},
		},
	})

	run, err := h.svc.RunByName(ctx, "triage", map[string]any{"value": 9})
	require.NoError(t, err)
	assert.Equal(t, "escalated", run.State["outcome"])

	run, err = h.svc.RunByName(ctx, "triage", map[string]any{"value": 2})
	require.NoError(t, err)
	assert.Equal(t, "archived", run.State["outcome"])
}

func TestCyclicGraphConverges(t *testing.T) {
	h := newHarness(t)

	h.define(&schema.GraphDefinition{
		Name:       "countdown",
		EntryPoint: "dec",
		Nodes: []schema.NodeDefinition{
			celNode("dec", "int(state.n) - 1", "n"),
		},
		Edges: []schema.EdgeDefinition{
			{From: "dec", To: "dec", Condition: "int(state.n) > 0"},
		},
	})

	run, err := h.svc.RunByName(context.Background(), "countdown", map[string]any{"n": 5})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(0), run.State["n"])
	assert.Len(t, run.VisitedNodes, 5)
}

func TestFailedRunIsPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.define(&schema.GraphDefinition{
		Name:       "divider",
		EntryPoint: "div",
		Nodes: []schema.NodeDefinition{
			celNode("div", "10 / int(state.divisor)", "result"),
		},
	})

	run, err := h.svc.RunByName(ctx, "divider", map[string]any{"divisor": 0})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "STEP_FAILED")

	stored, err := h.svc.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
}

func TestInvalidDefinitionRejected(t *testing.T) {
	h := newHarness(t)

	_, result, err := h.svc.DefineGraph(context.Background(), &schema.GraphDefinition{
		Name:       "broken",
		EntryPoint: "a",
		Nodes:      []schema.NodeDefinition{{ID: "a", Tool: "no.such.tool"}},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	// Nothing stored.
	_, err = h.svc.GetGraph(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestDataQualityPipeline(t *testing.T) {
	h := newHarness(t)

	h.define(workflows.DataQualityDefinition())

	records := []any{
		map[string]any{"id": 1, "name": nil},
		map[string]any{"id": 1, "name": nil},
		map[string]any{"id": 2, "name": "ada"},
	}
	run, err := h.svc.RunByName(context.Background(), workflows.DataQualityGraphName, map[string]any{
		"records": records,
	})
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusCompleted, run.Status)

	summary, ok := run.State["summary"].(map[string]any)
	require.True(t, ok, "summary should be a map, got %T", run.State["summary"])
	assert.EqualValues(t, 0, summary["final_anomaly_count"])
	assert.Equal(t, "summarize", run.VisitedNodes[len(run.VisitedNodes)-1])
}

func TestScheduledJobRunsGraph(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.define(&schema.GraphDefinition{
		Name:       "nightly",
		EntryPoint: "stamp",
		Nodes: []schema.NodeDefinition{
			celNode("stamp", "'done'", "result"),
		},
	})

	job, err := h.svc.ScheduleGraph(ctx, &store.ScheduledJob{
		GraphName:      "nightly",
		CronExpression: "0 3 * * *",
		Enabled:        true,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.NewScheduler(h.store, h.svc, logger)

	// Force the job due and tick once via RecoverMissed.
	past := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, h.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{NextRunAt: &past}))
	require.NoError(t, sched.RecoverMissed(ctx))

	runs, err := h.svc.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, schema.RunStatusCompleted, runs[0].Status)

	updated, err := h.store.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", updated.LastRunStatus)
	require.NotNil(t, updated.NextRunAt)
	assert.True(t, updated.NextRunAt.After(time.Now().UTC()))
}

func TestConcurrentRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.define(&schema.GraphDefinition{
		Name:       "echo",
		EntryPoint: "copy",
		Nodes: []schema.NodeDefinition{
			celNode("copy", "int(state.i)", "out"),
		},
	})

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := h.svc.RunByName(ctx, "echo", map[string]any{"i": i})
			if err == nil && run.Status != schema.RunStatusCompleted {
				err = fmt.Errorf("run %d finished %s", i, run.Status)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "run %d", i)
	}

	runs, err := h.svc.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, n)
}
