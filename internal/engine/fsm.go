package engine

import (
	"github.com/rendis/stateflow/pkg/schema"
)

// ValidRunTransitions defines the allowed, monotonic status transitions for
// runs. Paused is reserved for an asynchronous executor extension; the
// synchronous executor never enters it.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending:   {schema.RunStatusRunning},
	schema.RunStatusRunning:   {schema.RunStatusCompleted, schema.RunStatusFailed, schema.RunStatusPaused},
	schema.RunStatusPaused:    {schema.RunStatusRunning, schema.RunStatusFailed},
	schema.RunStatusCompleted: {},
	schema.RunStatusFailed:    {},
}

// Transition validates and applies a run status transition.
func Transition(run *Run, to schema.RunStatus) error {
	if !isValidRunTransition(run.Status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", run.Status, to).
			WithDetails(map[string]any{"run_id": run.RunID, "from": string(run.Status), "to": string(to)})
	}
	run.Status = to
	return nil
}

func isValidRunTransition(from, to schema.RunStatus) bool {
	allowed, ok := ValidRunTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}
