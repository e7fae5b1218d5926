package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rendis/stateflow/pkg/schema"
)

// StepLog is one entry in a run's execution trace, recorded per node
// invocation.
type StepLog struct {
	StepID        string            `json:"step_id"`
	NodeID        string            `json:"node_name"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        schema.StepStatus `json:"status"`
	DurationMs    float64           `json:"duration_ms"`
	Error         string            `json:"error,omitempty"`
	StateSnapshot map[string]any    `json:"state_snapshot,omitempty"`
}

// Run is one execution instance of a graph. It owns its state and logs; the
// graph it references must outlive it. A run is mutated only by the executor
// driving it and is read-only once its status is terminal.
type Run struct {
	RunID        string            `json:"run_id"`
	GraphID      string            `json:"graph_id"`
	State        map[string]any    `json:"state"`
	Status       schema.RunStatus  `json:"status"`
	VisitedNodes []string          `json:"visited_nodes"`
	Logs         []StepLog         `json:"logs"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// NewRun creates a pending run with a copy of the initial state.
func NewRun(graphID string, initialState map[string]any) *Run {
	state := make(map[string]any, len(initialState))
	for k, v := range initialState {
		state[k] = v
	}
	return &Run{
		RunID:     uuid.NewString(),
		GraphID:   graphID,
		State:     state,
		Status:    schema.RunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// snapshotState returns a shallow copy of the current state for step logs.
func (r *Run) snapshotState() map[string]any {
	snap := make(map[string]any, len(r.State))
	for k, v := range r.State {
		snap[k] = v
	}
	return snap
}

// mergeState applies a partial state with flat overwrite semantics: each key
// in updates replaces the existing value wholesale (no deep merge).
func (r *Run) mergeState(updates map[string]any) {
	for k, v := range updates {
		r.State[k] = v
	}
}

// logStep appends a step-log entry and the matching visited-node entry. The
// two sequences always have equal length.
func (r *Run) logStep(nodeID string, status schema.StepStatus, durationMs float64, errMsg string) {
	r.Logs = append(r.Logs, StepLog{
		StepID:        uuid.NewString(),
		NodeID:        nodeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		DurationMs:    durationMs,
		Error:         errMsg,
		StateSnapshot: r.snapshotState(),
	})
	r.VisitedNodes = append(r.VisitedNodes, nodeID)
}
