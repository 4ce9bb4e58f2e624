// Package storage persists the pipeline's durable state: update settings,
// the reminder schedule, version markers, and update history. Values are
// JSON documents in a single key/value table so the foreground and the
// worker share one substrate without schema churn.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store handles storage of pipeline configuration and state.
type Store interface {
	// SetConfigValue stores any JSON-serializable config value
	SetConfigValue(key string, value interface{}) error
	// GetConfigValue retrieves any JSON-serializable config value.
	// A missing key leaves dest unchanged and returns nil.
	GetConfigValue(key string, dest interface{}) error
	// DeleteConfigValue removes a stored config value by key
	DeleteConfigValue(key string) error
	// Close closes the database connection
	Close() error
}

// Well-known keys. The worker only ever reads these; all writes flow through
// the foreground-owned setters.
const (
	KeyUpdateSettings   = "update_settings"
	KeyUpdateHistory    = "update_history"
	KeyInstalledVersion = "installed_version"
	KeyWorkerVersion    = "worker_version"
	KeyReminderSchedule = "reminder_schedule"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new Store with SQLite backend
func NewStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipeline_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pipeline_state_key ON pipeline_state(key);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create pipeline_state schema: %w", err)
	}

	return nil
}

// SetConfigValue stores any JSON-serializable config value
func (s *SQLiteStore) SetConfigValue(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal config value: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pipeline_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(jsonValue))

	if err != nil {
		return fmt.Errorf("failed to save config value: %w", err)
	}

	return nil
}

// GetConfigValue retrieves any JSON-serializable config value
func (s *SQLiteStore) GetConfigValue(key string, dest interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM pipeline_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil // Key not found, dest remains unchanged
	}
	if err != nil {
		return fmt.Errorf("failed to get config value: %w", err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to unmarshal config value: %w", err)
	}

	return nil
}

// DeleteConfigValue removes a key from the store
func (s *SQLiteStore) DeleteConfigValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM pipeline_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete config value: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
