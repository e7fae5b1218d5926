package schema

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"

	// RunStatusPaused is reserved for an asynchronous executor extension.
	// The synchronous executor never produces it.
	RunStatusPaused RunStatus = "paused"
)

// Terminal reports whether the status is final. A terminal run is read-only.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// StepStatus is the per-step outcome recorded in the run log.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)
