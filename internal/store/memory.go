package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rendis/stateflow/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// Everything is lost on process exit.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*GraphRecord
	runs   map[string]*RunRecord
	jobs   map[string]*ScheduledJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string]*GraphRecord),
		runs:   make(map[string]*RunRecord),
		jobs:   make(map[string]*ScheduledJob),
	}
}

// --- Graphs ---

func (s *MemoryStore) CreateGraph(ctx context.Context, rec *GraphRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.graphs {
		if g.Name == rec.Name {
			return schema.NewErrorf(schema.ErrCodeConflict, "graph %q already exists", rec.Name)
		}
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.graphs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGraph(ctx context.Context, id string) (*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.graphs[id]
	if !ok {
		return nil, notFound("graph", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) GetGraphByName(ctx context.Context, name string) (*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.graphs {
		if rec.Name == name {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, notFound("graph", name)
}

func (s *MemoryStore) ListGraphs(ctx context.Context, filter GraphFilter) ([]*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*GraphRecord
	for _, rec := range s.graphs {
		if filter.Name != "" && rec.Name != filter.Name {
			continue
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return paginate(recs, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return notFound("graph", id)
	}
	delete(s.graphs, id)
	return nil
}

// --- Runs ---

func (s *MemoryStore) CreateRun(ctx context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[rec.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", rec.ID)
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.runs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, notFound("run", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*RunRecord
	for _, rec := range s.runs {
		if filter.GraphID != "" && rec.GraphID != filter.GraphID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return paginate(recs, filter.Limit, filter.Offset), nil
}

// --- Scheduled Jobs ---

func (s *MemoryStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID)
	}
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.jobs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound("scheduled job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return notFound("scheduled job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		job.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		job.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*ScheduledJob
	for _, job := range s.jobs {
		if filter.Enabled != nil && job.Enabled != *filter.Enabled {
			continue
		}
		if filter.GraphName != "" && job.GraphName != filter.GraphName {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) DeleteScheduledJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return notFound("scheduled job", id)
	}
	delete(s.jobs, id)
	return nil
}

// --- Maintenance ---

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Vacuum(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
