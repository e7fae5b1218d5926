package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/stateflow/pkg/schema"
)

// GraphRecord is the persisted representation of a graph definition. Names
// are unique among stored graphs; re-defining a name is a caller decision
// (delete then create), not an implicit upsert.
type GraphRecord struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Definition schema.GraphDefinition `json:"definition"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// RunRecord is the persisted representation of a finished run. State, visited
// nodes and step logs are stored as JSON documents since the store never
// queries inside them.
type RunRecord struct {
	ID           string           `json:"run_id"`
	GraphID      string           `json:"graph_id"`
	Status       schema.RunStatus `json:"status"`
	State        json.RawMessage  `json:"state,omitempty"`
	VisitedNodes json.RawMessage  `json:"visited_nodes,omitempty"`
	Logs         json.RawMessage  `json:"logs,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// ScheduledJob is a cron-triggered run of a stored graph.
type ScheduledJob struct {
	ID             string          `json:"id"`
	GraphName      string          `json:"graph_name"`
	CronExpression string          `json:"cron_expression"`
	InitialState   json.RawMessage `json:"initial_state,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// GraphFilter specifies criteria for listing graphs.
type GraphFilter struct {
	Name   string     `json:"name,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	GraphID string            `json:"graph_id,omitempty"`
	Status  *schema.RunStatus `json:"status,omitempty"`
	Since   *time.Time        `json:"since,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	GraphName string `json:"graph_name,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
