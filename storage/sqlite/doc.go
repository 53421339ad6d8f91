// Package sqlite is a storage backend on SQLite through the pure-Go
// modernc.org/sqlite driver. The schema is embedded and applied with
// ApplyMigrations.
//
// Scopes are stored space-joined and timestamps as unix milliseconds.
// Authorization codes are consumed with DELETE ... RETURNING, so a code is
// handed out at most once even under concurrent exchange.
package sqlite
