// Package postgres is a storage backend on PostgreSQL through lib/pq.
//
// The schema lives in the embedded migrations directory and is applied with
// ApplyMigrations. Tables are prefixed with oauth_ so the schema can share a
// database with the game service.
package postgres
