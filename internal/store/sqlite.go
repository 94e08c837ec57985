package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		thread_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		assistant_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used_at);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		assistant_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rounds INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id, created_at);

	CREATE TABLE IF NOT EXISTS form_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		responses TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_form_submissions_thread ON form_submissions(thread_id, id);

	CREATE TABLE IF NOT EXISTS assistants (
		name TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vector_stores (
		name TEXT PRIMARY KEY,
		remote_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// exec runs a write statement, retrying on SQLITE_BUSY.
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := shared.RetryOnConflict(ctx, op, writeAttempts, writeBaseDelay, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession records a newly created thread.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (thread_id, kind, assistant_name, created_at, last_used_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(thread_id) DO NOTHING`

	_, err := s.exec(ctx, "create session", query,
		session.ThreadID, string(session.Kind), session.AssistantName,
		session.CreatedAt.Unix(), session.LastUsedAt.Unix(),
	)
	return err
}

// GetSession retrieves a session by thread ID.
func (s *SQLiteStore) GetSession(ctx context.Context, threadID string) (*domain.Session, error) {
	query := `
		SELECT thread_id, kind, assistant_name, created_at, last_used_at
		FROM sessions WHERE thread_id = ?`

	var session domain.Session
	var kind string
	var createdAt, lastUsed int64
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&session.ThreadID, &kind, &session.AssistantName, &createdAt, &lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.Kind = domain.SessionKind(kind)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastUsedAt = time.Unix(lastUsed, 0)
	return &session, nil
}

// TouchSession updates last_used_at for a session.
func (s *SQLiteStore) TouchSession(ctx context.Context, threadID string, at time.Time) error {
	_, err := s.exec(ctx, "touch session",
		`UPDATE sessions SET last_used_at = ? WHERE thread_id = ?`, at.Unix(), threadID)
	return err
}

// RecordRun stores the outcome of one orchestrated run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *domain.RunRecord) error {
	query := `
	INSERT INTO runs (run_id, thread_id, assistant_id, status, rounds, error_kind, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, "record run", query,
		run.RunID, run.ThreadID, run.AssistantID, string(run.Status), run.Rounds,
		nullString(run.ErrorKind), nullString(run.Error), run.CreatedAt.Unix(),
	)
	return err
}

// ListRuns returns the runs of a thread, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, threadID string) ([]*domain.RunRecord, error) {
	query := `
		SELECT run_id, thread_id, assistant_id, status, rounds, error_kind, error, created_at
		FROM runs WHERE thread_id = ? ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		var run domain.RunRecord
		var status string
		var errorKind, errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&run.RunID, &run.ThreadID, &run.AssistantID, &status, &run.Rounds,
			&errorKind, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run.Status = domain.RunStatus(status)
		run.ErrorKind = errorKind.String
		run.Error = errMsg.String
		run.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// SaveFormSubmission stores form values captured from fill_forms.
func (s *SQLiteStore) SaveFormSubmission(ctx context.Context, sub *domain.FormSubmission) error {
	query := `
	INSERT INTO form_submissions (thread_id, run_id, responses, created_at)
	VALUES (?, ?, ?, ?)`

	_, err := s.exec(ctx, "save form submission", query,
		sub.ThreadID, sub.RunID, sub.Responses, sub.CreatedAt.Unix())
	return err
}

// LatestFormSubmission returns the newest submission of a thread.
func (s *SQLiteStore) LatestFormSubmission(ctx context.Context, threadID string) (*domain.FormSubmission, error) {
	query := `
		SELECT thread_id, run_id, responses, created_at
		FROM form_submissions WHERE thread_id = ? ORDER BY id DESC LIMIT 1`

	var sub domain.FormSubmission
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&sub.ThreadID, &sub.RunID, &sub.Responses, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan form submission: %w", err)
	}
	sub.CreatedAt = time.Unix(createdAt, 0)
	return &sub, nil
}

// GetAssistant retrieves a stored assistant by definition name.
func (s *SQLiteStore) GetAssistant(ctx context.Context, name string) (*domain.AssistantRecord, error) {
	query := `
		SELECT name, fingerprint, remote_id, created_at, updated_at
		FROM assistants WHERE name = ?`

	var rec domain.AssistantRecord
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, name).Scan(&rec.Name, &rec.Fingerprint, &rec.RemoteID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan assistant row: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// UpsertAssistant creates or replaces a stored assistant.
func (s *SQLiteStore) UpsertAssistant(ctx context.Context, rec *domain.AssistantRecord) error {
	query := `
	INSERT INTO assistants (name, fingerprint, remote_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		fingerprint = excluded.fingerprint,
		remote_id = excluded.remote_id,
		updated_at = excluded.updated_at`

	_, err := s.exec(ctx, "upsert assistant", query,
		rec.Name, rec.Fingerprint, rec.RemoteID, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	return err
}

// GetVectorStore retrieves a stored vector store by name.
func (s *SQLiteStore) GetVectorStore(ctx context.Context, name string) (*domain.VectorStoreRecord, error) {
	var rec domain.VectorStoreRecord
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, remote_id, created_at FROM vector_stores WHERE name = ?`, name,
	).Scan(&rec.Name, &rec.RemoteID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan vector store row: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// UpsertVectorStore creates or replaces a stored vector store.
func (s *SQLiteStore) UpsertVectorStore(ctx context.Context, rec *domain.VectorStoreRecord) error {
	query := `
	INSERT INTO vector_stores (name, remote_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET remote_id = excluded.remote_id`

	_, err := s.exec(ctx, "upsert vector store", query, rec.Name, rec.RemoteID, rec.CreatedAt.Unix())
	return err
}

// PruneBefore removes sessions unused since cutoff and their dependent rows.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	threshold := cutoff.Unix()
	stale := `SELECT thread_id FROM sessions WHERE last_used_at < ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE thread_id IN (`+stale+`)`, threshold); err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM form_submissions WHERE thread_id IN (`+stale+`)`, threshold); err != nil {
		return 0, fmt.Errorf("prune form submissions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_used_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return deleted, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
