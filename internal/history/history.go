package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages deployment history in SQLite
type History struct {
	db *sql.DB
}

// New creates a new history tracker backed by the database at dbPath
func New(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app TEXT NOT NULL,
			version TEXT NOT NULL,
			repository TEXT NOT NULL,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			backup_name TEXT,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Create index for efficient queries
	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_app_started
		ON deployments(app, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Add records a finished deployment attempt
func (h *History) Add(ctx context.Context, record *Record) (int64, error) {
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else {
		now := time.Now().UTC().Format(time.RFC3339)
		completedAt = &now
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deployments
		(app, version, repository, run_id, status, stage, backup_name,
		 started_at, completed_at, duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.App,
		record.Version,
		record.Repository,
		record.RunID,
		record.Status,
		record.Stage,
		record.BackupName,
		startedAt.UTC().Format(time.RFC3339),
		completedAt,
		record.DurationSeconds,
		record.ErrorMessage,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Latest returns the most recent deployment attempt for an application
func (h *History) Latest(ctx context.Context, app string) (*Record, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, app, version, repository, run_id, status, stage, backup_name,
		       started_at, completed_at, duration_seconds, error_message
		FROM deployments
		WHERE app = ?
		ORDER BY id DESC
		LIMIT 1
	`, app)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deployment: %w", err)
	}

	return record, nil
}

// ForApp returns deployment history for an application, newest first
func (h *History) ForApp(ctx context.Context, app string, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, app, version, repository, run_id, status, stage, backup_name,
		       started_at, completed_at, duration_seconds, error_message
		FROM deployments
		WHERE app = ?
		ORDER BY id DESC
		LIMIT ?
	`, app, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// AllAppsStatus returns the latest deployment attempt for each application
func (h *History) AllAppsStatus(ctx context.Context) (map[string]*Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT d1.id, d1.app, d1.version, d1.repository, d1.run_id, d1.status,
		       d1.stage, d1.backup_name, d1.started_at, d1.completed_at,
		       d1.duration_seconds, d1.error_message
		FROM deployments d1
		INNER JOIN (
			SELECT app, MAX(id) as max_id
			FROM deployments
			GROUP BY app
		) d2
		ON d1.id = d2.max_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all apps status: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Record)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		result[record.App] = record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a database row into a Record
// Works with both *sql.Row and *sql.Rows
func scanRecord(s scanner) (*Record, error) {
	var record Record
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.App,
		&record.Version,
		&record.Repository,
		&record.RunID,
		&record.Status,
		&record.Stage,
		&record.BackupName,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.ErrorMessage,
	)

	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
