package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/internal/observe"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "sparc:oauth:"

	// DefaultExpiryGrace is how long an expired code or token key is kept
	// so the server can observe and delete it.
	DefaultExpiryGrace = time.Hour

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// minKeyTTL keeps PX arguments positive for entries saved long expired.
	minKeyTTL = time.Second
)

// Entry kinds used in key names.
const (
	kindCode         = "code"
	kindAccessToken  = "at"
	kindRefreshToken = "rt"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "sparc:oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// ExpiryGrace extends code and token key TTLs past their expiry
	// (default 1h)
	ExpiryGrace time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of all storage interfaces.
type Store struct {
	client      valkeygo.Client
	prefix      string
	expiryGrace time.Duration
	logger      *slog.Logger
	obs         *observe.Observer
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.Store          = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.Sweeper        = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	grace := cfg.ExpiryGrace
	if grace <= 0 {
		grace = DefaultExpiryGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:      client,
		prefix:      prefix,
		expiryGrace: grace,
		logger:      logger,
		obs:         observe.New("valkey"),
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// SetInstrumentation enables spans, operation metrics and size gauges. Code
// and token gauges read the expiry indexes, so they include entries that
// have expired but not yet been swept.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs.SetInstrumentation(inst)
	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		AuthCodes:     s.indexSize(kindCode),
		AccessTokens:  s.indexSize(kindAccessToken),
		RefreshTokens: s.indexSize(kindRefreshToken),
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

func (s *Store) indexSize(kind string) instrumentation.StorageSizeCallback {
	key := s.expiryKey(kind)
	return func() int64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := s.client.Do(ctx, s.client.B().Zcard().Key(key).Build()).AsInt64()
		if err != nil {
			s.logger.Debug("Index size failed", "key", key, "error", err)
			return 0
		}
		return n
	}
}

// DeleteExpired removes codes and tokens whose expiry is before now
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (res storage.SweepResult, err error) {
	ctx, done := s.obs.Start(ctx, "delete_expired")
	defer func() { done(err) }()

	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	counts := map[string]*int{
		kindCode:         &res.AuthCodes,
		kindAccessToken:  &res.AccessTokens,
		kindRefreshToken: &res.RefreshTokens,
	}
	for _, kind := range []string{kindCode, kindAccessToken, kindRefreshToken} {
		n, err := s.client.Do(ctx,
			s.client.B().Eval().Script(luaDeleteExpired).
				Numkeys(1).
				Key(s.expiryKey(kind)).
				Arg(s.entryPrefix(kind), cutoff).
				Build(),
		).AsInt64()
		if err != nil {
			return res, fmt.Errorf("failed to sweep %s entries: %w", kind, err)
		}
		*counts[kind] = int(n)
	}

	if res.Total() > 0 {
		s.logger.Debug("Swept expired entries",
			"auth_codes", res.AuthCodes,
			"access_tokens", res.AccessTokens,
			"refresh_tokens", res.RefreshTokens)
	}
	return res, nil
}

// ============================================================
// Key helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) entryPrefix(kind string) string {
	return s.prefix + kind + ":"
}

func (s *Store) entryKey(kind, hash string) string {
	return s.entryPrefix(kind) + hash
}

func (s *Store) expiryKey(kind string) string {
	return s.prefix + "expiry:" + kind
}

func (s *Store) userTokensKey(kind, userID, appID string) string {
	return s.prefix + "user:" + userID + ":" + appID + ":" + kind
}

func (s *Store) authorizationsKey(userID string) string {
	return s.prefix + "authz:" + userID
}

// ============================================================
// Helper methods
// ============================================================

// keyTTL is the TTL for a key expiring at expiresAt, including the grace
// period.
func (s *Store) keyTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + s.expiryGrace
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func msString(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func splitScopes(s string) []string {
	return strings.Fields(s)
}

func logHash(hash string) string {
	return util.SafeTruncate(hash, tokenIDLogLength)
}
