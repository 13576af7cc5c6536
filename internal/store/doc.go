// Package store persists per-user accessibility settings.
//
// # Architecture
//
// SettingsStore is the only interface. Two implementations exist:
//
//   - SQLiteStore: a single settings(name, user_id, value) table on
//     modernc.org/sqlite, WAL journaling, additive migrations
//   - MockStore: a map guarded by a RWMutex for tests and ephemeral runs
//
// # Settings
//
// Toggles are stored as "0"/"1" (see GetBool/PutBool). Component lists are
// colon-separated "pkg/cls" names.
//
// # Change notification
//
// Watch registers an observer called after every write that changed a
// value. Observers run on the writer's goroutine; the broker re-posts them to
// its worker queue so writes made under the broker lock never re-enter it.
package store
