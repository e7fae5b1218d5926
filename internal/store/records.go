package store

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/stateflow/internal/engine"
)

// NewRunRecord converts a finished run into its persisted form.
func NewRunRecord(run *engine.Run) (*RunRecord, error) {
	state, err := json.Marshal(run.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	visited, err := json.Marshal(run.VisitedNodes)
	if err != nil {
		return nil, fmt.Errorf("marshal visited nodes: %w", err)
	}
	logs, err := json.Marshal(run.Logs)
	if err != nil {
		return nil, fmt.Errorf("marshal logs: %w", err)
	}
	return &RunRecord{
		ID:           run.RunID,
		GraphID:      run.GraphID,
		Status:       run.Status,
		State:        state,
		VisitedNodes: visited,
		Logs:         logs,
		Error:        run.Error,
		CreatedAt:    run.CreatedAt,
		CompletedAt:  run.CompletedAt,
	}, nil
}

// ToRun rebuilds the in-memory run from its persisted form.
func (r *RunRecord) ToRun() (*engine.Run, error) {
	run := &engine.Run{
		RunID:       r.ID,
		GraphID:     r.GraphID,
		Status:      r.Status,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
	if len(r.State) > 0 {
		if err := json.Unmarshal(r.State, &run.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}
	if len(r.VisitedNodes) > 0 {
		if err := json.Unmarshal(r.VisitedNodes, &run.VisitedNodes); err != nil {
			return nil, fmt.Errorf("unmarshal visited nodes: %w", err)
		}
	}
	if len(r.Logs) > 0 {
		if err := json.Unmarshal(r.Logs, &run.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	return run, nil
}
