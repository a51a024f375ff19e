package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"uborka/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB

	mu       sync.RWMutex
	cleaners map[int64]models.Cleaner
	sorted   []models.Cleaner
	logger   *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, cleaners: make(map[int64]models.Cleaner), logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS occurrences (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            client_id INTEGER NOT NULL,
            cleaner_id INTEGER NOT NULL DEFAULT 0,
            address_id INTEGER NOT NULL DEFAULT 0,
            service_type TEXT NOT NULL,
            duration_minutes INTEGER NOT NULL DEFAULT 0,
            price REAL NOT NULL DEFAULT 0,
            notes TEXT NOT NULL DEFAULT '',
            internal_notes TEXT NOT NULL DEFAULT '',
            scheduled_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled',
            is_paid BOOLEAN NOT NULL DEFAULT 0,
            is_recurring BOOLEAN NOT NULL DEFAULT 0,
            frequency TEXT NOT NULL DEFAULT 'none',
            recurrence_end DATETIME,
            parent_id INTEGER REFERENCES occurrences(id),
            series_state TEXT NOT NULL DEFAULT 'active',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS time_off (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            cleaner_id INTEGER NOT NULL,
            start_date DATETIME NOT NULL,
            end_date DATETIME NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'requested',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            occurrence_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_occurrences_scheduled_at ON occurrences(scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_status ON occurrences(status)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_parent_id ON occurrences(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_client_id ON occurrences(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_cleaner_id ON occurrences(cleaner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_time_off_cleaner_id ON time_off(cleaner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetCleaners refreshes the in-memory roster cache used by exports and the
// schedule sheet. The slice order is preserved for display.
func (db *DB) SetCleaners(cleaners []models.Cleaner) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cleaners = make(map[int64]models.Cleaner, len(cleaners))
	for _, c := range cleaners {
		db.cleaners[c.ID] = c
	}
	db.sorted = cleaners
}

// GetCleaners returns the cached roster in display order.
func (db *DB) GetCleaners() []models.Cleaner {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.Cleaner, len(db.sorted))
	copy(out, db.sorted)
	return out
}

// GetCleanerByID looks up a roster entry from the cache.
func (db *DB) GetCleanerByID(id int64) (models.Cleaner, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.cleaners[id]
	return c, ok
}

func (db *DB) Close() error {
	return db.DB.Close()
}
