// Package sqlite provides a SQLite-based implementation of the checkpoint store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Each thread is stored as one row holding
// the JSON-encoded conversation state.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-chat/data/chat.db
//
// # Thread Safety
//
// All operations are thread-safe. Saves are single-row upserts inside a
// transaction, so concurrent writers for one thread resolve last-writer-wins.
package sqlite
