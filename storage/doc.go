// Package storage defines the persistence contract of the authorization
// server core.
//
// The core never stores a plaintext credential: authorization codes, access
// tokens and refresh tokens are keyed by the hex SHA-256 of their value. Every
// lookup distinguishes "not found" (an ErrNotFound-wrapping sentinel) from a
// backend failure (any other error), so callers can map the former to an
// OAuth protocol error and the latter to server_error.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process maps for development, tests and single-node deployments
//   - storage/sqlite: embedded SQLite via modernc.org/sqlite
//   - storage/postgres: PostgreSQL via lib/pq
//   - storage/valkey: Valkey/Redis-compatible storage with native key expiry
//   - storage/mock: a recording wrapper with error injection for unit tests
//   - storage/storagetest: the conformance suite every backend runs
package storage
