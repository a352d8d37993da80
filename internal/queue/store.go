package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chevelle/internal/config"
)

// Store records sessions and burn jobs in SQLite so a run can be inspected
// while it executes and after it finishes.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old databases must be deleted after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the session database under the log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "chevelle.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// CreateSession inserts a new running session.
func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = SessionRunning
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (
            id, device, mode, capacity_frames, track_count, disc_count,
            status, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		session.ID,
		session.Device,
		session.Mode,
		session.CapacityFrames,
		session.TrackCount,
		session.DiscCount,
		session.Status,
		session.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession records the terminal status and finish time of a session.
func (s *Store) FinishSession(ctx context.Context, id, status string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET status = ?, finished_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// LatestSession returns the most recently started session, or nil when the
// database is empty.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device, mode, capacity_frames, track_count, disc_count,
                status, started_at, finished_at
         FROM sessions ORDER BY started_at DESC LIMIT 1`)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	return session, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		session    Session
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.Device,
		&session.Mode,
		&session.CapacityFrames,
		&session.TrackCount,
		&session.DiscCount,
		&session.Status,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	session.StartedAt = parsed
	if finishedAt.Valid {
		finished, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		session.FinishedAt = &finished
	}
	return &session, nil
}

const jobColumns = `id, session_id, disc_index, track_count, total_frames, mode,
    status, attempt, image_path, cue_path, error_message,
    progress_stage, progress_percent, progress_message, tracks_json,
    created_at, updated_at`

// CreateJob inserts a pending burn job for one disc of a session.
func (s *Store) CreateJob(ctx context.Context, job *BurnJob) (*BurnJob, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if job.Status == "" {
		job.Status = StatusPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO burn_jobs (
            session_id, disc_index, track_count, total_frames, mode, status,
            attempt, image_path, cue_path, error_message,
            progress_stage, progress_percent, progress_message, tracks_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.SessionID,
		job.DiscIndex,
		job.TrackCount,
		job.TotalFrames,
		job.Mode,
		job.Status,
		job.Attempt,
		nullableString(job.ImagePath),
		nullableString(job.CuePath),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableString(job.TracksJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a burn job by identifier, returning nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*BurnJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM burn_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsBySession returns all jobs for a session in disc order.
func (s *Store) JobsBySession(ctx context.Context, sessionID string) ([]*BurnJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM burn_jobs WHERE session_id = ? ORDER BY disc_index`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("jobs by session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*BurnJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *BurnJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE burn_jobs SET
            status = ?, attempt = ?, image_path = ?, cue_path = ?,
            error_message = ?, progress_stage = ?, progress_percent = ?,
            progress_message = ?, updated_at = ?
        WHERE id = ?`,
		job.Status,
		job.Attempt,
		nullableString(job.ImagePath),
		nullableString(job.CuePath),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %d not found", job.ID)
	}
	return nil
}

// Transition moves a job to a new status after validating the edge, then
// persists the job. The in-memory job is updated on success.
func (s *Store) Transition(ctx context.Context, job *BurnJob, to Status) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s for job %d", job.Status, to, job.ID)
	}
	previous := job.Status
	job.Status = to
	if err := s.UpdateJob(ctx, job); err != nil {
		job.Status = previous
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*BurnJob, error) {
	var (
		job             BurnJob
		status          string
		imagePath       sql.NullString
		cuePath         sql.NullString
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		tracksJSON      sql.NullString
		createdAt       string
		updatedAt       string
	)
	if err := row.Scan(
		&job.ID,
		&job.SessionID,
		&job.DiscIndex,
		&job.TrackCount,
		&job.TotalFrames,
		&job.Mode,
		&status,
		&job.Attempt,
		&imagePath,
		&cuePath,
		&errorMessage,
		&progressStage,
		&job.ProgressPercent,
		&progressMessage,
		&tracksJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.ImagePath = imagePath.String
	job.CuePath = cuePath.String
	job.ErrorMessage = errorMessage.String
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String
	job.TracksJSON = tracksJSON.String

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	job.CreatedAt = created
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	job.UpdatedAt = updated
	return &job, nil
}
