package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/stateflow/internal/graph"
	"github.com/rendis/stateflow/internal/logging"
	"github.com/rendis/stateflow/pkg/schema"
)

// DefaultMaxIterations bounds how many steps a run may take before being
// forcibly failed. Large enough for realistic loops; the ceiling is the
// engine's core termination guarantee for cyclic graphs.
const DefaultMaxIterations = 1000

// Config holds executor configuration.
type Config struct {
	// MaxIterations is the step ceiling per run (DefaultMaxIterations if <= 0).
	MaxIterations int

	// StrictRouting fails the run with a ROUTING_ERROR when an edge predicate
	// errors, instead of treating the edge as non-matching.
	StrictRouting bool
}

// Executor drives a graph from its entry point, applying node transforms to
// state, resolving the next node via edge predicates, and recording a full
// execution trace. It is single-path: when several edges qualify it follows
// the first in insertion order, so fan-out topologies are representable but
// never executed in parallel.
//
// An Executor is stateless between runs and safe for concurrent use as long
// as the graphs it executes are not mutated while a run is in flight.
type Executor struct {
	config Config
	logger *slog.Logger
}

// NewExecutor creates an Executor. logger may be nil.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{config: cfg, logger: logger}
}

// Execute runs the graph to completion against a copy of initialState and
// returns the finalized run record.
//
// Invalid graphs fail fast with a VALIDATION_ERROR before any run is created.
// All later failures (node errors, iteration ceiling, cancellation) are
// recorded on the run itself — the caller always receives a complete Run with
// the trace up to the failure point, and a nil error.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, initialState map[string]any) (*Run, error) {
	if g == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph is nil")
	}
	if valid, msg := g.Validate(); !valid {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid graph: %s", msg)
	}

	run := NewRun(g.ID, initialState)
	ctx = logging.WithGraphID(logging.WithRunID(ctx, run.RunID), g.ID)

	if err := Transition(run, schema.RunStatusRunning); err != nil {
		return nil, err
	}

	current := g.EntryPoint()
	steps := 0

	for current != "" && steps < e.config.MaxIterations {
		// Cooperative cancellation, checked at the top of each iteration.
		if ctx.Err() != nil {
			e.failRun(run, schema.NewErrorf(schema.ErrCodeCancelled,
				"run cancelled after %d steps: %s", steps, ctx.Err().Error()))
			return run, nil
		}

		node, ok := g.Node(current)
		if !ok {
			// Unreachable post-validation; an internal consistency failure.
			e.failRun(run, schema.NewErrorf(schema.ErrCodeExecution,
				"node %q vanished from graph during run", current).WithNode(current))
			return run, nil
		}

		stepCtx := logging.WithNodeID(ctx, current)
		e.logger.InfoContext(stepCtx, "executing node")

		start := time.Now()
		updates, err := applyTransform(stepCtx, node, run.State)
		durationMs := float64(time.Since(start)) / float64(time.Millisecond)

		if err != nil {
			run.logStep(current, schema.StepStatusError, durationMs, err.Error())
			e.failRun(run, schema.NewErrorf(schema.ErrCodeStepFailed,
				"node %s: %s", current, err.Error()).WithNode(current).WithCause(err))
			e.logger.ErrorContext(stepCtx, "run failed", slog.String("error", err.Error()))
			return run, nil
		}

		run.mergeState(updates)
		run.logStep(current, schema.StepStatusSuccess, durationMs, "")
		steps++

		next, routeErr := g.NextNodes(stepCtx, current, run.State)
		if routeErr != nil {
			if e.config.StrictRouting {
				e.failRun(run, routeErr)
				return run, nil
			}
			e.logger.WarnContext(stepCtx, "edge predicate errored, treated as non-matching",
				slog.String("error", routeErr.Error()))
		}

		// Single-path tie-break: first qualifying edge in insertion order.
		if len(next) == 0 {
			current = ""
		} else {
			current = next[0]
		}
	}

	if current != "" {
		// The loop exited on the ceiling, not by natural termination.
		e.failRun(run, schema.NewErrorf(schema.ErrCodeIterationLimit,
			"exceeded maximum iterations (%d)", e.config.MaxIterations))
		e.logger.ErrorContext(ctx, "run exceeded iteration ceiling",
			slog.Int("max_iterations", e.config.MaxIterations))
		return run, nil
	}

	if err := Transition(run, schema.RunStatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	e.logger.InfoContext(ctx, "run completed", slog.Int("steps", steps))

	return run, nil
}

// applyTransform invokes a node transform, converting panics into errors so a
// misbehaving node fails its run instead of the process.
func applyTransform(ctx context.Context, node *graph.Node, state map[string]any) (updates map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()
	return node.Transform.Apply(ctx, state)
}

// failRun finalizes a run as failed with the given error.
func (e *Executor) failRun(run *Run, cause error) {
	// Running -> Failed is always a valid transition here.
	_ = Transition(run, schema.RunStatusFailed)
	run.Error = cause.Error()
	now := time.Now().UTC()
	run.CompletedAt = &now
}
