package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// processingKey is the fixed key the processing set lives under.
const processingKey = "processing_docs"

// SQLiteStore keeps client state in a small key/value table. Having the
// schema in code keeps the CLI self-contained: first run creates the
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	const stmt = `
CREATE TABLE IF NOT EXISTS client_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the persisted processing set, or nil when none is tracked.
// A value that no longer parses is discarded rather than wedging startup.
func (s *SQLiteStore) Load() ([]int, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, processingKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var ids []int
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		_ = s.Clear()
		return nil, nil
	}
	return ids, nil
}

// Save stores the set as a JSON array. Ids are sorted first so an unchanged
// set always serializes to identical bytes. Saving an empty set clears the
// key instead.
func (s *SQLiteStore) Save(ids []int) error {
	if len(ids) == 0 {
		return s.Clear()
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	value, err := json.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO client_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, processingKey, string(value))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear removes the key entirely.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, processingKey); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
