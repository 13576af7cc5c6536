// ABOUTME: Tests for the settings store implementations
// ABOUTME: Covers SQLite persistence, migrations, and change notification for both stores

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "settings.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.PutString(ctx, SettingAccessibilityEnabled, "1", 0); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}
	got, err := store.GetString(ctx, SettingAccessibilityEnabled, 0)
	if err != nil || got != "1" {
		t.Errorf("GetString = %q, %v, want %q", got, err, "1")
	}
}

func TestSQLiteStore_MigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE settings (name TEXT NOT NULL, user_id INTEGER NOT NULL, value TEXT NOT NULL, PRIMARY KEY (name, user_id));
		INSERT INTO settings (name, user_id, value) VALUES ('accessibility_enabled', 0, '1');`)
	if err != nil {
		t.Fatalf("seeding old schema: %v", err)
	}
	db.Close()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if !GetBool(ctx, store, SettingAccessibilityEnabled, 0, false) {
		t.Error("existing value lost during migration")
	}
	if err := PutBool(ctx, store, SettingAccessibilityEnabled, false, 0); err != nil {
		t.Errorf("write after migration failed: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.PutString(ctx, SettingEnabledServices, "a/a.S:b/b.S", 10); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.GetString(ctx, SettingEnabledServices, 10)
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if got != "a/a.S:b/b.S" {
		t.Errorf("GetString = %q, want %q", got, "a/a.S:b/b.S")
	}
}

// storeContract runs the behavior every SettingsStore must share.
func storeContract(t *testing.T, s SettingsStore) {
	ctx := context.Background()

	if _, err := s.GetString(ctx, SettingScriptInjection, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetString on unset = %v, want ErrNotFound", err)
	}

	var changes []Change
	cancel := s.Watch(func(c Change) { changes = append(changes, c) })

	if err := s.PutString(ctx, SettingTouchExplorationEnabled, "1", 3); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}
	if err := s.PutString(ctx, SettingTouchExplorationEnabled, "1", 3); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}
	if err := s.PutString(ctx, SettingTouchExplorationEnabled, "0", 3); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2 (unchanged writes are silent)", len(changes))
	}
	if changes[0] != (Change{Name: SettingTouchExplorationEnabled, UserID: 3}) {
		t.Errorf("change = %+v", changes[0])
	}

	// Users are isolated.
	if GetBool(ctx, s, SettingTouchExplorationEnabled, 4, false) {
		t.Error("user 4 sees user 3's value")
	}

	cancel()
	if err := PutBool(ctx, s, SettingTouchExplorationEnabled, true, 3); err != nil {
		t.Fatalf("PutBool failed: %v", err)
	}
	if len(changes) != 2 {
		t.Errorf("watch still active after cancel")
	}
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContract(t, newTestStore(t))
}

func TestMockStore_Contract(t *testing.T) {
	storeContract(t, NewMockStore())
}

func TestGetBool_Malformed(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()
	_ = s.PutString(ctx, SettingAccessibilityEnabled, "yes", 0)

	if !GetBool(ctx, s, SettingAccessibilityEnabled, 0, true) {
		t.Error("malformed value should fall back to the default")
	}
}
