package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Graphs
	CreateGraph(ctx context.Context, rec *GraphRecord) error
	GetGraph(ctx context.Context, id string) (*GraphRecord, error)
	GetGraphByName(ctx context.Context, name string) (*GraphRecord, error)
	ListGraphs(ctx context.Context, filter GraphFilter) ([]*GraphRecord, error)
	DeleteGraph(ctx context.Context, id string) error

	// Runs (append-only: the synchronous executor persists finished runs)
	CreateRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// Scheduled Jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
