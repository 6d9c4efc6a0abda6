package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kubestellar/console-assistant/pkg/models"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. Use ":memory:" for a private
// in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		backend_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		query TEXT NOT NULL,
		job_id TEXT,
		status TEXT NOT NULL,
		task_output TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		backend_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		vote INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_job ON jobs(backend_id, job_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_job ON feedback(backend_id, job_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

const jobColumns = `j.id, j.backend_id, j.model_id, j.task_id, j.query, j.job_id, j.status, j.task_output, j.error, j.created_at, j.finished_at,
	COALESCE((SELECT f.vote FROM feedback f WHERE f.backend_id = j.backend_id AND f.job_id = j.job_id ORDER BY f.created_at DESC LIMIT 1), 0)`

func (s *SQLiteStore) CreateJob(job *models.JobRecord) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.JobStatusCompleted
	}

	var finishedAt sql.NullTime
	if job.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *job.FinishedAt, Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO jobs (id, backend_id, model_id, task_id, query, job_id, status, task_output, error, created_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.BackendID, job.ModelID, job.TaskID, job.Query, nullString(job.JobID), string(job.Status),
		nullString(job.TaskOutput), nullString(job.Error), job.CreatedAt, finishedAt)
	return err
}

func (s *SQLiteStore) GetJob(id uuid.UUID) (*models.JobRecord, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs j WHERE j.id = ?`, id.String())
	return scanJob(row)
}

func (s *SQLiteStore) GetJobByJobID(backendID, jobID string) (*models.JobRecord, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs j WHERE j.backend_id = ? AND j.job_id = ? ORDER BY j.created_at DESC LIMIT 1`, backendID, jobID)
	return scanJob(row)
}

// ListJobs returns the most recent jobs first; limit <= 0 returns all
func (s *SQLiteStore) ListJobs(limit int) ([]models.JobRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs j ORDER BY j.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// DeleteJobsBefore prunes jobs created before t along with their feedback
func (s *SQLiteStore) DeleteJobsBefore(t time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM feedback WHERE EXISTS (SELECT 1 FROM jobs j WHERE j.backend_id = feedback.backend_id AND j.job_id = feedback.job_id AND j.created_at < ?)`, t); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM jobs WHERE created_at < ?`, t)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *SQLiteStore) CreateFeedback(feedback *models.FeedbackRecord) error {
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO feedback (id, backend_id, job_id, vote, created_at) VALUES (?, ?, ?, ?, ?)`,
		feedback.ID.String(), feedback.BackendID, feedback.JobID, int(feedback.Vote), feedback.CreatedAt)
	return err
}

func (s *SQLiteStore) GetJobFeedback(backendID, jobID string) ([]models.FeedbackRecord, error) {
	rows, err := s.db.Query(`SELECT id, backend_id, job_id, vote, created_at FROM feedback WHERE backend_id = ? AND job_id = ? ORDER BY created_at DESC`, backendID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedback []models.FeedbackRecord
	for rows.Next() {
		var f models.FeedbackRecord
		var idStr string
		var vote int
		if err := rows.Scan(&idStr, &f.BackendID, &f.JobID, &vote, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.ID, _ = uuid.Parse(idStr)
		f.Vote = models.Vote(vote)
		feedback = append(feedback, f)
	}
	return feedback, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*models.JobRecord, error) {
	var j models.JobRecord
	var idStr, status string
	var jobID, taskOutput, errMsg sql.NullString
	var finishedAt sql.NullTime
	var vote int

	err := row.Scan(&idStr, &j.BackendID, &j.ModelID, &j.TaskID, &j.Query, &jobID, &status,
		&taskOutput, &errMsg, &j.CreatedAt, &finishedAt, &vote)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.ID, _ = uuid.Parse(idStr)
	j.JobID = jobID.String
	j.Status = models.JobStatus(status)
	j.TaskOutput = taskOutput.String
	j.Error = errMsg.String
	j.Vote = models.Vote(vote)
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	return &j, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
