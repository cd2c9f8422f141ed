// Package history records finished builds in the bldr database and reads
// them back for the history command.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/db"
	"github.com/marcus/bldr/internal/logging"
)

// ErrNotFound is returned by Get for an unknown build ID.
var ErrNotFound = errors.New("build not found")

// Trigger values describe what started a build.
const (
	TriggerManual   = "manual"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
)

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored build.
type Record struct {
	ID         string
	Project    string
	Profile    string
	Tasks      []string // explicitly requested tasks, empty for profile builds
	Trigger    string
	Status     builder.RunStatus
	Error      string
	StartTime  time.Time
	EndTime    time.Time
	ReportPath string
	Results    []TaskRecord
	Failures   []FailureRecord
}

// TaskRecord is the stored outcome of one task.
type TaskRecord struct {
	Name     string
	Status   builder.TaskStatus
	Calls    int
	Executed int
	Duration time.Duration
}

// FailureRecord is a stored call failure.
type FailureRecord struct {
	Task      string
	CallIndex int
	CallType  string
	Reason    string
	Recovered bool
}

// Duration returns the wall time of the build.
func (r *Record) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Target describes what the build ran: the profile or the explicit tasks.
func (r *Record) Target() string {
	if len(r.Tasks) > 0 {
		return "tasks: " + strings.Join(r.Tasks, ", ")
	}
	return r.Profile
}

// NewRecord builds a record for a finished build. res may be nil when the
// build failed before any task ran.
func NewRecord(project, trigger string, req builder.Request, res *builder.Result, runErr error) *Record {
	now := time.Now()
	rec := &Record{
		ID:        uuid.NewString(),
		Project:   project,
		Profile:   req.Profile,
		Tasks:     req.Tasks,
		Trigger:   trigger,
		Status:    builder.RunFailed,
		StartTime: now,
		EndTime:   now,
	}
	if len(req.Tasks) > 0 {
		rec.Profile = ""
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if res == nil {
		return rec
	}

	rec.Status = res.Status
	rec.StartTime = res.StartTime
	rec.EndTime = res.EndTime
	for _, t := range res.Tasks {
		rec.Results = append(rec.Results, TaskRecord{
			Name:     t.Name,
			Status:   t.Status,
			Calls:    t.Calls,
			Executed: t.Executed,
			Duration: t.Duration,
		})
	}
	for _, f := range res.Failures {
		rec.Failures = append(rec.Failures, FailureRecord{
			Task:      f.Task,
			CallIndex: f.Index,
			CallType:  f.Type,
			Reason:    f.Reason,
			Recovered: f.Recovered,
		})
	}
	return rec
}

// Store persists build records.
type Store struct {
	db     *db.DB
	logger *logging.Logger
}

// New creates a store on an open database.
func New(database *db.DB) *Store {
	return &Store{db: database, logger: logging.Component("history")}
}

// Open opens the database at path and returns a store that owns it.
func Open(path string) (*Store, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return New(database), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes rec and its task outcomes in one transaction.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	tasksJSON, err := json.Marshal(nonNil(rec.Tasks))
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}

	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO builds (id, project, profile, tasks, start_time, end_time, status, error, trigger, report_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Project, rec.Profile, string(tasksJSON),
		formatTime(rec.StartTime), formatTime(rec.EndTime),
		string(rec.Status), nullString(rec.Error), orDefault(rec.Trigger, TriggerManual), rec.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	for i, t := range rec.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_tasks (build_id, position, name, status, calls, executed, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, t.Name, string(t.Status), t.Calls, t.Executed, t.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert build task %s: %w", t.Name, err)
		}
	}

	for _, f := range rec.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_failures (build_id, task, call_index, call_type, reason, recovered)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, f.Task, f.CallIndex, f.CallType, f.Reason, boolToInt(f.Recovered),
		); err != nil {
			return fmt.Errorf("insert build failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.DebugCtx("build recorded", map[string]any{"id": rec.ID, "status": string(rec.Status)})
	return nil
}

// SetReportPath records where a build's report was written.
func (s *Store) SetReportPath(ctx context.Context, id, path string) error {
	res, err := s.db.SQL().ExecContext(ctx, `UPDATE builds SET report_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("update report path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectBuilds = `SELECT id, project, profile, tasks, start_time, end_time, status, error, trigger, report_path FROM builds`

// Recent returns up to limit builds, newest first, with their task
// outcomes and failures. A non-empty profile filters by profile name.
func (s *Store) Recent(ctx context.Context, limit int, profile string) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := selectBuilds
	args := []any{}
	if profile != "" {
		query += ` WHERE profile = ?`
		args = append(args, profile)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	_ = rows.Close()

	for i := range records {
		if err := s.loadDetails(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Get returns a single build by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.SQL().QueryRowContext(ctx, selectBuilds+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) loadDetails(ctx context.Context, rec *Record) error {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT name, status, calls, executed, duration_ms FROM build_tasks WHERE build_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return fmt.Errorf("query build tasks: %w", err)
	}
	for rows.Next() {
		var (
			t          TaskRecord
			status     string
			durationMS int64
		)
		if err := rows.Scan(&t.Name, &status, &t.Calls, &t.Executed, &durationMS); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan build task: %w", err)
		}
		t.Status = builder.TaskStatus(status)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Results = append(rec.Results, t)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.SQL().QueryContext(ctx,
		`SELECT task, call_index, call_type, reason, recovered FROM build_failures WHERE build_id = ? ORDER BY id`, rec.ID)
	if err != nil {
		return fmt.Errorf("query build failures: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			f         FailureRecord
			recovered int
		)
		if err := rows.Scan(&f.Task, &f.CallIndex, &f.CallType, &f.Reason, &recovered); err != nil {
			return fmt.Errorf("scan build failure: %w", err)
		}
		f.Recovered = recovered != 0
		rec.Failures = append(rec.Failures, f)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec               Record
		tasksJSON, status string
		start             string
		end, errMsg       sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Project, &rec.Profile, &tasksJSON, &start, &end, &status, &errMsg, &rec.Trigger, &rec.ReportPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan build: %w", err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &rec.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks for build %s: %w", rec.ID, err)
	}
	rec.Status = builder.RunStatus(status)
	rec.Error = errMsg.String
	rec.StartTime = parseTime(start)
	if end.Valid {
		rec.EndTime = parseTime(end.String)
	}
	return &rec, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the stored layout and the driver's own time rendering.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
