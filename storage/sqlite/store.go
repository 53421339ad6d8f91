package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/internal/observe"
)

// Store is a SQLite implementation of all storage interfaces.
type Store struct {
	db     *sql.DB
	dsn    string
	obs    *observe.Observer
	logger *slog.Logger
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.Sweeper        = (*Store)(nil)
)

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers and keeps the pragmas below in
	// effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	return &Store{
		db:     db,
		dsn:    dsn,
		obs:    observe.New("sqlite"),
		logger: slog.Default(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// SetInstrumentation enables spans, operation metrics and row-count gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs.SetInstrumentation(inst)
	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		Clients:        s.counter("clients"),
		AuthCodes:      s.counter("auth_codes"),
		AccessTokens:   s.counter("access_tokens"),
		RefreshTokens:  s.counter("refresh_tokens"),
		Authorizations: s.counter("user_authorizations"),
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// counter returns a row count callback for table. table is always one of
// the fixed names above.
func (s *Store) counter(table string) instrumentation.StorageSizeCallback {
	query := "SELECT COUNT(*) FROM " + table
	return func() int64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var n int64
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			s.logger.Debug("Row count failed", "table", table, "error", err)
			return 0
		}
		return n
	}
}

// DeleteExpired removes codes and tokens whose expiry is before now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (res storage.SweepResult, err error) {
	ctx, done := s.obs.Start(ctx, "delete_expired")
	defer func() { done(err) }()

	cutoff := toMillis(now)
	counts := []*int{&res.AuthCodes, &res.AccessTokens, &res.RefreshTokens}
	for i, table := range []string{"auth_codes", "access_tokens", "refresh_tokens"} {
		r, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at < ?", cutoff)
		if err != nil {
			return res, fmt.Errorf("sweeping %s: %w", table, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, err
		}
		*counts[i] = int(n)
	}
	return res, nil
}

func mapNotFound(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// requireAffected maps a statement that touched no rows to notFound.
func requireAffected(r sql.Result, notFound error) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func mapNullMillis(v sql.NullInt64) time.Time {
	if v.Valid {
		return fromMillis(v.Int64)
	}
	return time.Time{}
}

func toNullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func splitScopes(s string) []string {
	return strings.Fields(s)
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(s string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
