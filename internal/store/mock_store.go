// ABOUTME: In-memory SettingsStore implementation for tests and ephemeral runs
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sync"
)

// MockStore is an in-memory SettingsStore implementation.
type MockStore struct {
	mu       sync.RWMutex
	values   map[string]string // keyed by "userID:name"
	watchers watchers
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		values: make(map[string]string),
	}
}

func settingKey(name string, userID int) string {
	return fmt.Sprintf("%d:%s", userID, name)
}

// GetString reads a setting.
func (m *MockStore) GetString(ctx context.Context, name string, userID int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[settingKey(name, userID)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// PutString writes a setting, notifying watchers on change.
func (m *MockStore) PutString(ctx context.Context, name, value string, userID int) error {
	key := settingKey(name, userID)

	m.mu.Lock()
	old, existed := m.values[key]
	m.values[key] = value
	m.mu.Unlock()

	if !existed || old != value {
		m.watchers.notify(Change{Name: name, UserID: userID})
	}
	return nil
}

// Watch registers fn for setting changes.
func (m *MockStore) Watch(fn func(Change)) func() {
	return m.watchers.add(fn)
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
