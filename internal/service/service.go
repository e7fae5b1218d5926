package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/stateflow/internal/engine"
	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/internal/graph"
	"github.com/rendis/stateflow/internal/logging"
	"github.com/rendis/stateflow/internal/store"
	"github.com/rendis/stateflow/internal/tools"
	"github.com/rendis/stateflow/internal/validation"
	"github.com/rendis/stateflow/pkg/schema"
)

// FlowService ties the graph builder, executor and store together. It is the
// entry point used by the MCP server, the CLI and the scheduler.
type FlowService struct {
	store     store.Store
	registry  *tools.Registry
	cel       *expressions.CELEngine
	validator *validation.GraphValidator
	executor  *engine.Executor
	logger    *slog.Logger
}

// NewFlowService wires a FlowService from its collaborators.
func NewFlowService(st store.Store, reg *tools.Registry, cel *expressions.CELEngine, exec *engine.Executor, logger *slog.Logger) (*FlowService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gv, err := validation.NewGraphValidator(reg, cel)
	if err != nil {
		return nil, err
	}
	return &FlowService{
		store:     st,
		registry:  reg,
		cel:       cel,
		validator: gv,
		executor:  exec,
		logger:    logger,
	}, nil
}

// DefineGraph validates a graph definition and persists it under its name.
// The validation result is returned alongside the record so callers can
// surface warnings even on success.
func (s *FlowService) DefineGraph(ctx context.Context, def *schema.GraphDefinition) (*store.GraphRecord, *schema.ValidationResult, error) {
	result := s.validator.Validate(def)
	if !result.Valid() {
		return nil, result, result.ToError()
	}

	now := time.Now().UTC()
	rec := &store.GraphRecord{
		ID:         uuid.NewString(),
		Name:       def.Name,
		Definition: *def,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateGraph(ctx, rec); err != nil {
		return nil, result, err
	}

	s.logger.InfoContext(logging.WithGraphID(ctx, rec.ID), "graph defined",
		slog.String("name", rec.Name),
		slog.Int("nodes", len(def.Nodes)),
		slog.Int("edges", len(def.Edges)),
		slog.Int("warnings", len(result.Warnings)),
	)
	return rec, result, nil
}

// RunByName loads a stored graph definition by name and executes it.
func (s *FlowService) RunByName(ctx context.Context, graphName string, initialState map[string]any) (*engine.Run, error) {
	rec, err := s.store.GetGraphByName(ctx, graphName)
	if err != nil {
		return nil, err
	}
	return s.runDefinition(ctx, rec.ID, &rec.Definition, initialState)
}

// RunDefinition validates and executes an inline graph definition without
// storing it. The run itself is still persisted.
func (s *FlowService) RunDefinition(ctx context.Context, def *schema.GraphDefinition, initialState map[string]any) (*engine.Run, error) {
	if err := s.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	return s.runDefinition(ctx, "", def, initialState)
}

func (s *FlowService) runDefinition(ctx context.Context, graphID string, def *schema.GraphDefinition, initialState map[string]any) (*engine.Run, error) {
	g, err := graph.Build(def, s.registry, s.cel)
	if err != nil {
		return nil, err
	}
	if graphID != "" {
		// Runs of stored graphs reference the stored record, not the
		// transient build.
		g.ID = graphID
	}

	run, err := s.executor.Execute(ctx, g, initialState)
	if err != nil {
		return nil, err
	}

	rec, err := store.NewRunRecord(run)
	if err != nil {
		return run, err
	}
	if err := s.store.CreateRun(ctx, rec); err != nil {
		s.logger.ErrorContext(logging.WithRunID(ctx, run.RunID), "failed to persist run",
			slog.String("error", err.Error()))
		return run, err
	}
	return run, nil
}

// RunGraph satisfies scheduler.GraphRunner. A run that finishes FAILED counts
// as a failed job so the schedule status reflects the outcome.
func (s *FlowService) RunGraph(ctx context.Context, graphName string, initialState map[string]any) error {
	run, err := s.RunByName(ctx, graphName, initialState)
	if err != nil {
		return err
	}
	if run.Status == schema.RunStatusFailed {
		return schema.NewErrorf(schema.ErrCodeExecution, "run %s failed: %s", run.RunID, run.Error)
	}
	return nil
}

// GetRun fetches a persisted run by ID.
func (s *FlowService) GetRun(ctx context.Context, runID string) (*store.RunRecord, error) {
	return s.store.GetRun(ctx, runID)
}

// ListRuns lists persisted runs.
func (s *FlowService) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.RunRecord, error) {
	return s.store.ListRuns(ctx, filter)
}

// GetGraph fetches a stored graph by name.
func (s *FlowService) GetGraph(ctx context.Context, name string) (*store.GraphRecord, error) {
	return s.store.GetGraphByName(ctx, name)
}

// ListGraphs lists stored graph definitions.
func (s *FlowService) ListGraphs(ctx context.Context, filter store.GraphFilter) ([]*store.GraphRecord, error) {
	return s.store.ListGraphs(ctx, filter)
}

// DeleteGraph removes a stored graph by name.
func (s *FlowService) DeleteGraph(ctx context.Context, name string) error {
	rec, err := s.store.GetGraphByName(ctx, name)
	if err != nil {
		return err
	}
	return s.store.DeleteGraph(ctx, rec.ID)
}

// ScheduleGraph registers a cron schedule for a stored graph. The graph must
// exist; the first run happens on the next scheduler tick.
func (s *FlowService) ScheduleGraph(ctx context.Context, job *store.ScheduledJob) (*store.ScheduledJob, error) {
	if _, err := s.store.GetGraphByName(ctx, job.GraphName); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListScheduledJobs lists registered schedules.
func (s *FlowService) ListScheduledJobs(ctx context.Context, filter store.ScheduledJobFilter) ([]*store.ScheduledJob, error) {
	return s.store.ListScheduledJobs(ctx, filter)
}
