// Package storage implements the embedded store each namespace owns: typed
// tables over SQLite with a BLOB vector column and an FTS5 index for keyword
// search. The adapter exposes add/delete/count/search/filter; rows are never
// updated in place, writers delete and rewrite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrWorkItemNotFound  = errors.New("work item not found")
	ErrExecutionNotFound = errors.New("execution record not found")
)

// DBFileName is the database file inside every namespace's storage root.
const DBFileName = "jive.db"

// Store is the handle for one namespace's storage root.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the directory if missing, opens the namespace database, and
// runs migrations. WAL mode and a busy timeout keep concurrent writers from
// failing fast.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dir}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.CreateFTSIndex(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create fts index: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS work_items (
		id TEXT PRIMARY KEY,
		item_type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'not_started',
		priority TEXT NOT NULL DEFAULT 'medium',
		parent_id TEXT,
		dependencies TEXT NOT NULL DEFAULT '[]',
		sequence_number TEXT NOT NULL DEFAULT '',
		order_index INTEGER NOT NULL DEFAULT 0,
		progress_percentage REAL NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		acceptance_criteria TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		vector BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);
	CREATE INDEX IF NOT EXISTS idx_work_items_type ON work_items(item_type);
	CREATE INDEX IF NOT EXISTS idx_work_items_order ON work_items(order_index);

	CREATE TABLE IF NOT EXISTS execution_log (
		id TEXT PRIMARY KEY,
		work_item_id TEXT,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		agent_id TEXT,
		details TEXT,
		error_message TEXT,
		duration_seconds REAL NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_execution_work_item ON execution_log(work_item_id);
	CREATE INDEX IF NOT EXISTS idx_execution_status ON execution_log(status);
	CREATE INDEX IF NOT EXISTS idx_execution_timestamp ON execution_log(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateFTSIndex creates the keyword-search index if it does not exist.
// Idempotent; called on every Open so keyword search is usable from the first
// write.
func (s *Store) CreateFTSIndex() error {
	_, err := s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS work_items_fts USING fts5(
		id UNINDEXED,
		title,
		description,
		acceptance_criteria,
		status,
		priority,
		item_type
	)`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the storage root this store was opened on.
func (s *Store) Path() string {
	return s.path
}

// TableCounts reports per-table row counts for namespace diagnostics.
func (s *Store) TableCounts() (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"work_items", "execution_log"} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// withRetry runs fn up to three times with exponential backoff when the
// database reports contention. Writes to the same row are serialised this way
// instead of holding a process-wide lock.
func (s *Store) withRetry(fn func() error) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
