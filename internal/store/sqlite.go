// ABOUTME: SQLite implementation of the SettingsStore interface using modernc.org/sqlite
// ABOUTME: Persists per-user accessibility settings with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the SettingsStore interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	watchers watchers
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS settings (
			name TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (name, user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_settings_user
			ON settings(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies additive schema changes to databases created by
// older versions.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('settings') WHERE name = 'updated_at'`,
			apply:  `ALTER TABLE settings ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''`,
			column: "updated_at",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to settings: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "settings")
	}

	return nil
}

// GetString reads a setting for a user.
func (s *SQLiteStore) GetString(ctx context.Context, name string, userID int) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = ? AND user_id = ?`,
		name, userID,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", name, err)
	}
	return value, nil
}

// PutString writes a setting for a user. Watchers are notified only when the
// stored value actually changes.
func (s *SQLiteStore) PutString(ctx context.Context, name, value string, userID int) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, user_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, user_id) DO UPDATE
			SET value = excluded.value, updated_at = excluded.updated_at
			WHERE settings.value != excluded.value
	`, name, userID, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking setting %s write: %w", name, err)
	}
	if n > 0 {
		s.logger.Debug("setting changed", "name", name, "user_id", userID)
		s.watchers.notify(Change{Name: name, UserID: userID})
	}
	return nil
}

// Watch registers fn for setting changes.
func (s *SQLiteStore) Watch(fn func(Change)) func() {
	return s.watchers.add(fn)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
