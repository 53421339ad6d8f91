package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/postgres"
	"github.com/sparcrpg/sparc-oauth/storage/sqlite"
	"github.com/sparcrpg/sparc-oauth/storage/valkey"
)

// backend is what the CLI needs from a storage driver.
type backend interface {
	storage.Store
	storage.ClientRegistry
	storage.Sweeper
}

// migrator is implemented by the SQL drivers.
type migrator interface {
	ApplyMigrations() error
	MigrationVersion() (uint, bool, error)
}

// openBackend connects to the configured driver. The returned func closes
// it.
func openBackend(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Driver {
	case DriverSQLite:
		s, err := sqlite.NewStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s.SetLogger(logger)
		return s, func() { _ = s.Close() }, nil

	case DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s.SetLogger(logger)
		return s, func() { _ = s.Close() }, nil

	case DriverValkey:
		s, err := valkey.New(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
