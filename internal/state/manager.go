package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// Manager persists the history of compaction sessions
type Manager struct {
	db *sql.DB
}

// SessionRecord represents one finished session
type SessionRecord struct {
	ID               int64
	Root             string
	StartTime        time.Time
	EndTime          time.Time
	Status           domain.SessionStatus
	Visited          int64
	Processed        int64
	SkippedUnchanged int64
	SkippedExtension int64
	SkippedAttribute int64
	SkippedEmpty     int64
	Failed           int64
	SavedBytes       int64
	CacheEntries     int
	Error            string
}

// RecordFromSummary converts a session summary into a history record
func RecordFromSummary(s *domain.SessionSummary) SessionRecord {
	return SessionRecord{
		Root:             s.Root,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           s.Status,
		Visited:          s.Visited,
		Processed:        s.Processed,
		SkippedUnchanged: s.SkippedUnchanged,
		SkippedExtension: s.SkippedByExtension,
		SkippedAttribute: s.SkippedByAttribute,
		SkippedEmpty:     s.SkippedEmpty,
		Failed:           s.Failed,
		SavedBytes:       int64(s.SessionSaved()),
		CacheEntries:     s.CacheEntries,
		Error:            s.WalkError,
	}
}

// NewManager opens (or creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "lzxauto.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		visited INTEGER DEFAULT 0,
		processed INTEGER DEFAULT 0,
		skipped_unchanged INTEGER DEFAULT 0,
		skipped_extension INTEGER DEFAULT 0,
		skipped_attribute INTEGER DEFAULT 0,
		skipped_empty INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		saved_bytes INTEGER DEFAULT 0,
		cache_entries INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_root_time ON sessions(root, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, root, start_time, end_time, status, visited, processed,
		skipped_unchanged, skipped_extension, skipped_attribute, skipped_empty,
		failed, saved_bytes, cache_entries, error
	FROM sessions`

// SaveSession records a finished session
func (m *Manager) SaveSession(record SessionRecord) error {
	switch record.Status {
	case domain.StatusSuccess, domain.StatusCancelled, domain.StatusPartial, domain.StatusFailed:
	default:
		return fmt.Errorf("invalid status: %q", record.Status)
	}

	query := `
		INSERT INTO sessions (root, start_time, end_time, status, visited, processed,
			skipped_unchanged, skipped_extension, skipped_attribute, skipped_empty,
			failed, saved_bytes, cache_entries, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.Root,
		record.StartTime,
		record.EndTime,
		string(record.Status),
		record.Visited,
		record.Processed,
		record.SkippedUnchanged,
		record.SkippedExtension,
		record.SkippedAttribute,
		record.SkippedEmpty,
		record.Failed,
		record.SavedBytes,
		record.CacheEntries,
		record.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}

	return nil
}

// GetHistory retrieves the latest sessions for a root
func (m *Manager) GetHistory(root string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectColumns+`
		WHERE root = ?
		ORDER BY start_time DESC
		LIMIT ?`, root, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return collectRecords(rows)
}

// GetAllHistory retrieves the latest sessions for every root
func (m *Manager) GetAllHistory(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectColumns+`
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	return collectRecords(rows)
}

// GetLastSuccess retrieves the last successful session for a root.
// Returns nil, nil when there is none.
func (m *Manager) GetLastSuccess(root string) (*SessionRecord, error) {
	row := m.db.QueryRow(selectColumns+`
		WHERE root = ? AND status = ?
		ORDER BY start_time DESC
		LIMIT 1`, root, string(domain.StatusSuccess))

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}

	return &record, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (SessionRecord, error) {
	var r SessionRecord
	var status string
	err := s.Scan(
		&r.ID,
		&r.Root,
		&r.StartTime,
		&r.EndTime,
		&status,
		&r.Visited,
		&r.Processed,
		&r.SkippedUnchanged,
		&r.SkippedExtension,
		&r.SkippedAttribute,
		&r.SkippedEmpty,
		&r.Failed,
		&r.SavedBytes,
		&r.CacheEntries,
		&r.Error,
	)
	r.Status = domain.SessionStatus(status)
	return r, err
}

func collectRecords(rows *sql.Rows) ([]SessionRecord, error) {
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
