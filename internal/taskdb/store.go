package taskdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed backlog and session persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertTask inserts or updates a task. Status and created_at are only
// written on first insert; after that the store owns them and re-syncing
// from the source never clobbers them.
func (s *Store) UpsertTask(task *domain.Task) error {
	labelsJSON, err := json.Marshal(task.Labels)
	if err != nil {
		return err
	}
	depsJSON, err := json.Marshal(task.DependsOn)
	if err != nil {
		return err
	}

	created := task.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := task.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, title, description, labels, depends_on, status, has_pr, source_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			labels = excluded.labels,
			depends_on = excluded.depends_on,
			has_pr = excluded.has_pr,
			source_ref = excluded.source_ref,
			updated_at = excluded.updated_at
	`,
		task.ID,
		task.Title,
		task.Description,
		string(labelsJSON),
		string(depsJSON),
		string(task.Status),
		task.HasPR,
		task.SourceRef,
		created,
		updated,
	)
	return err
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, labels, depends_on, status, has_pr, source_ref, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	return scanTask(row)
}

// ListOptions specifies filters for listing tasks
type ListOptions struct {
	Status domain.TaskStatus
}

// ListTasks returns tasks matching the given options
func (s *Store) ListTasks(opts ListOptions) ([]*domain.Task, error) {
	query := `SELECT id, title, description, labels, depends_on, status, has_pr, source_ref, created_at, updated_at FROM tasks WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateTaskStatus updates a task's status
func (s *Store) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	return err
}

// AttachArtifact records an artifact reference (branch, PR URL) on a task
func (s *Store) AttachArtifact(id string, ref string) error {
	_, err := s.db.Exec(`UPDATE tasks SET artifact_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now(), id)
	return err
}

// SaveSession inserts or updates a session row. Called at checkpoints
// during a run so a crash leaves the last known state behind.
func (s *Store) SaveSession(sess *domain.Session) error {
	var finished sql.NullTime
	if sess.FinishedAt != nil {
		finished = sql.NullTime{Time: *sess.FinishedAt, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, status, started_at, finished_at, attempted, succeeded, failed, deferred, total_cost, halt_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			attempted = excluded.attempted,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			deferred = excluded.deferred,
			total_cost = excluded.total_cost,
			halt_reason = excluded.halt_reason
	`,
		sess.ID,
		string(sess.Status),
		sess.StartedAt,
		finished,
		sess.Attempted,
		sess.Succeeded,
		sess.Failed,
		sess.Deferred,
		sess.TotalCost,
		sess.HaltReason,
	)
	return err
}

// RecordOutcome appends a task outcome to a session
func (s *Store) RecordOutcome(sessionID string, o domain.Outcome) error {
	_, err := s.db.Exec(`
		INSERT INTO outcomes (session_id, task_id, success, cost_usd, duration_secs, artifact_ref, detail, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		o.TaskID,
		o.Success,
		o.CostUSD,
		o.Duration.Seconds(),
		o.ArtifactRef,
		o.Detail,
		o.FinishedAt,
	)
	return err
}

// GetSession retrieves a session with its outcomes
func (s *Store) GetSession(id string) (*domain.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, status, started_at, finished_at, attempted, succeeded, failed, deferred, total_cost, halt_reason
		FROM sessions WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT task_id, success, cost_usd, duration_secs, artifact_ref, detail, finished_at
		FROM outcomes WHERE session_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.Outcome
		var durationSecs float64
		var artifactRef, detail sql.NullString
		if err := rows.Scan(&o.TaskID, &o.Success, &o.CostUSD, &durationSecs, &artifactRef, &detail, &o.FinishedAt); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durationSecs * float64(time.Second))
		if artifactRef.Valid {
			o.ArtifactRef = artifactRef.String
		}
		if detail.Valid {
			o.Detail = detail.String
		}
		sess.Outcomes = append(sess.Outcomes, o)
	}

	return sess, rows.Err()
}

// ListSessions returns the most recent sessions, newest first.
// Outcomes are not loaded; use GetSession for the full record.
func (s *Store) ListSessions(limit int) ([]*domain.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, status, started_at, finished_at, attempted, succeeded, failed, deferred, total_cost, halt_reason
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var task domain.Task
	var status, labelsJSON, depsJSON string
	var description, sourceRef sql.NullString

	err := row.Scan(&task.ID, &task.Title, &description, &labelsJSON, &depsJSON, &status, &task.HasPR, &sourceRef, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	if description.Valid {
		task.Description = description.String
	}
	if sourceRef.Valid {
		task.SourceRef = sourceRef.String
	}

	if labelsJSON != "" && labelsJSON != "null" {
		if err := json.Unmarshal([]byte(labelsJSON), &task.Labels); err != nil {
			return nil, err
		}
	}
	if depsJSON != "" && depsJSON != "null" {
		if err := json.Unmarshal([]byte(depsJSON), &task.DependsOn); err != nil {
			return nil, err
		}
	}

	return &task, nil
}

func scanTaskRows(rows *sql.Rows) (*domain.Task, error) {
	var task domain.Task
	var status, labelsJSON, depsJSON string
	var description, sourceRef sql.NullString

	err := rows.Scan(&task.ID, &task.Title, &description, &labelsJSON, &depsJSON, &status, &task.HasPR, &sourceRef, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	if description.Valid {
		task.Description = description.String
	}
	if sourceRef.Valid {
		task.SourceRef = sourceRef.String
	}

	if labelsJSON != "" && labelsJSON != "null" {
		if err := json.Unmarshal([]byte(labelsJSON), &task.Labels); err != nil {
			return nil, err
		}
	}
	if depsJSON != "" && depsJSON != "null" {
		if err := json.Unmarshal([]byte(depsJSON), &task.DependsOn); err != nil {
			return nil, err
		}
	}

	return &task, nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var finished sql.NullTime
	var haltReason sql.NullString

	err := row.Scan(&sess.ID, &status, &sess.StartedAt, &finished, &sess.Attempted, &sess.Succeeded, &sess.Failed, &sess.Deferred, &sess.TotalCost, &haltReason)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	if finished.Valid {
		t := finished.Time
		sess.FinishedAt = &t
	}
	if haltReason.Valid {
		sess.HaltReason = haltReason.String
	}

	return &sess, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var finished sql.NullTime
	var haltReason sql.NullString

	err := rows.Scan(&sess.ID, &status, &sess.StartedAt, &finished, &sess.Attempted, &sess.Succeeded, &sess.Failed, &sess.Deferred, &sess.TotalCost, &haltReason)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	if finished.Valid {
		t := finished.Time
		sess.FinishedAt = &t
	}
	if haltReason.Valid {
		sess.HaltReason = haltReason.String
	}

	return &sess, nil
}
