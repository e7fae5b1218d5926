package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stateflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Graphs ---

func (s *LibSQLStore) CreateGraph(ctx context.Context, rec *GraphRecord) error {
	def, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO graphs (id, name, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(def), timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return schema.NewErrorf(schema.ErrCodeConflict, "graph %q already exists", rec.Name)
	}
	return err
}

func (s *LibSQLStore) GetGraph(ctx context.Context, id string) (*GraphRecord, error) {
	return s.getGraph(ctx, `SELECT id, name, definition, created_at, updated_at FROM graphs WHERE id = ?`, id)
}

func (s *LibSQLStore) GetGraphByName(ctx context.Context, name string) (*GraphRecord, error) {
	return s.getGraph(ctx, `SELECT id, name, definition, created_at, updated_at FROM graphs WHERE name = ?`, name)
}

func (s *LibSQLStore) getGraph(ctx context.Context, query, key string) (*GraphRecord, error) {
	rec := &GraphRecord{}
	var defJSON string
	err := s.db.QueryRowContext(ctx, query, key).
		Scan(&rec.ID, &rec.Name, &defJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("graph", key)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListGraphs(ctx context.Context, filter GraphFilter) ([]*GraphRecord, error) {
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, name, definition, created_at, updated_at FROM graphs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*GraphRecord
	for rows.Next() {
		rec := &GraphRecord{}
		var defJSON string
		if err := rows.Scan(&rec.ID, &rec.Name, &defJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *LibSQLStore) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph", id)
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, graph_id, status, state, visited_nodes, logs, error, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GraphID, string(rec.Status),
		nullRaw(rec.State), nullRaw(rec.VisitedNodes), nullRaw(rec.Logs), nullStr(rec.Error),
		timeOrNow(rec.CreatedAt), nullTime(rec.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec := &RunRecord{}
	var status string
	var state, visited, logs, errMsg sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, status, state, visited_nodes, logs, error, created_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.GraphID, &status, &state, &visited, &logs, &errMsg, &rec.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Status = schema.RunStatus(status)
	rec.State = rawOrNil(state)
	rec.VisitedNodes = rawOrNil(visited)
	rec.Logs = rawOrNil(logs)
	rec.Error = errMsg.String
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	var where []string
	var args []any

	if filter.GraphID != "" {
		where = append(where, "graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, graph_id, status, state, visited_nodes, logs, error, created_at, completed_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		var status string
		var state, visited, logs, errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.GraphID, &status, &state, &visited, &logs, &errMsg,
			&rec.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		rec.Status = schema.RunStatus(status)
		rec.State = rawOrNil(state)
		rec.VisitedNodes = rawOrNil(visited)
		rec.Logs = rawOrNil(logs)
		rec.Error = errMsg.String
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, graph_name, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.GraphName, job.CronExpression, nullRaw(job.InitialState),
		boolToInt(job.Enabled), nullTime(job.LastRunAt), nullTime(job.NextRunAt),
		nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var initialState, lastStatus sql.NullString
	var lastRun, nextRun sql.NullTime
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, graph_name, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.GraphName, &job.CronExpression, &initialState, &enabled,
		&lastRun, &nextRun, &lastStatus, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("scheduled job", id)
	}
	if err != nil {
		return nil, err
	}
	job.InitialState = rawOrNil(initialState)
	job.Enabled = enabled != 0
	job.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		job.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		job.NextRunAt = &nextRun.Time
	}
	return job, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if filter.GraphName != "" {
		where = append(where, "graph_name = ?")
		args = append(args, filter.GraphName)
	}

	query := `SELECT id, graph_name, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job := &ScheduledJob{}
		var initialState, lastStatus sql.NullString
		var lastRun, nextRun sql.NullTime
		var enabled int
		if err := rows.Scan(&job.ID, &job.GraphName, &job.CronExpression, &initialState, &enabled,
			&lastRun, &nextRun, &lastStatus, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.InitialState = rawOrNil(initialState)
		job.Enabled = enabled != 0
		job.LastRunStatus = lastStatus.String
		if lastRun.Valid {
			job.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			job.NextRunAt = &nextRun.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

// --- Helpers ---

func notFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
