package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the journal database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT,
		uri TEXT,
		mime_type TEXT,
		polls INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(run_id, status);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Record inserts a terminal outcome. A second outcome for the same run and
// path is rejected with ErrDuplicate.
func (s *SQLiteStore) Record(ctx context.Context, rec *Record) error {
	if s.isClosed() {
		return fmt.Errorf("journal store is closed")
	}

	// Serialize writes to avoid SQLITE_BUSY from concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec.UpdatedAt = time.Now().UTC()

	return s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(run_id, path, status, stage, uri, mime_type, polls, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID,
			rec.Path,
			rec.Status,
			rec.Stage,
			rec.URI,
			rec.MIMEType,
			rec.Polls,
			rec.Attempts,
			rec.LastError,
			rec.UpdatedAt,
		)
		if err != nil && isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.Path)
		}
		return err
	})
}

// List returns the outcomes of a run ordered by path
func (s *SQLiteStore) List(ctx context.Context, runID string) ([]*Record, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("journal store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id, path, status, stage, uri, mime_type, polls, attempts, last_error, updated_at
	FROM outcomes WHERE run_id = ?
	ORDER BY path ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var stage, uri, mimeType, lastError sql.NullString

		if err := rows.Scan(
			&rec.RunID,
			&rec.Path,
			&rec.Status,
			&stage,
			&uri,
			&mimeType,
			&rec.Polls,
			&rec.Attempts,
			&lastError,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rec.Stage = stage.String
		rec.URI = uri.String
		rec.MIMEType = mimeType.String
		rec.LastError = lastError.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// retryOnBusy retries the operation while SQLite reports the database as locked
func (s *SQLiteStore) retryOnBusy(ctx context.Context, operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}

		delay := baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(attempt*10)*time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}

func isSQLiteBusyError(err error) bool {
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

func isConstraintError(err error) bool {
	errorStr := err.Error()
	return strings.Contains(errorStr, "UNIQUE constraint failed") ||
		strings.Contains(errorStr, "SQLITE_CONSTRAINT")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
