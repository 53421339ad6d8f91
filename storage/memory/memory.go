package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/internal/observe"
)

// tokenIDLogLength is the number of characters of a hash included in logs
const tokenIDLogLength = 8

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients        map[string]*storage.Client
	authCodes      map[string]*storage.AuthorizationCode // code hash -> code
	accessTokens   map[string]*storage.AccessToken       // token hash -> token
	refreshTokens  map[string]*storage.RefreshToken      // token hash -> token
	authorizations map[authKey]*storage.UserAuthorization

	obs *observe.Observer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount        atomic.Int64
	authCodesCount      atomic.Int64
	accessTokensCount   atomic.Int64
	refreshTokensCount  atomic.Int64
	authorizationsCount atomic.Int64

	clock  security.Clock
	logger *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type authKey struct {
	userID string
	appID  string
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.Store          = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.Sweeper        = (*Store)(nil)
)

// New creates an in-memory store without a background sweep. Expired rows
// are removed lazily by the server or by calling DeleteExpired.
func New() *Store {
	return &Store{
		clients:        make(map[string]*storage.Client),
		authCodes:      make(map[string]*storage.AuthorizationCode),
		accessTokens:   make(map[string]*storage.AccessToken),
		refreshTokens:  make(map[string]*storage.RefreshToken),
		authorizations: make(map[authKey]*storage.UserAuthorization),
		obs:            observe.New("memory"),
		clock:          security.SystemClock,
		logger:         slog.Default(),
		stopCleanup:    make(chan struct{}),
	}
}

// NewWithInterval creates an in-memory store that sweeps expired rows every
// cleanupInterval. Call Stop to end the sweep.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	s := New()
	if cleanupInterval > 0 {
		s.cleanupInterval = cleanupInterval
		go s.cleanupLoop()
	}
	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// SetClock sets the time source used by the background sweep.
func (s *Store) SetClock(clock security.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs.SetInstrumentation(inst)
	if inst == nil {
		return
	}

	s.mu.RLock()
	s.syncCounters()
	s.mu.RUnlock()

	err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		Clients:        s.clientsCount.Load,
		AuthCodes:      s.authCodesCount.Load,
		AccessTokens:   s.accessTokensCount.Load,
		RefreshTokens:  s.refreshTokensCount.Load,
		Authorizations: s.authorizationsCount.Load,
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// syncCounters must be called with mu held.
func (s *Store) syncCounters() {
	s.clientsCount.Store(int64(len(s.clients)))
	s.authCodesCount.Store(int64(len(s.authCodes)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	s.authorizationsCount.Store(int64(len(s.authorizations)))
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ClientStore / ClientRegistry
// ============================================================

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	_, done := s.obs.Start(ctx, "get_client")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return c.Clone(), nil
}

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	_, done := s.obs.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ClientID] = client.Clone()
	s.clientsCount.Store(int64(len(s.clients)))
	s.logger.Debug("Saved client", "client_id", client.ClientID, "client_type", client.ClientType)
	return nil
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	_, done := s.obs.Start(ctx, "delete_client")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return storage.ErrClientNotFound
	}
	delete(s.clients, clientID)
	s.clientsCount.Store(int64(len(s.clients)))
	return nil
}

// ============================================================
// AuthCodeStore
// ============================================================

// SaveAuthCode stores an authorization code keyed by its hash
func (s *Store) SaveAuthCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	_, done := s.obs.Start(ctx, "save_auth_code")
	defer func() { done(err) }()

	if code == nil || code.CodeHash == "" {
		return fmt.Errorf("code hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.authCodes[code.CodeHash]; exists {
		return fmt.Errorf("authorization code: %w", storage.ErrAlreadyExists)
	}
	s.authCodes[code.CodeHash] = code.Clone()
	s.authCodesCount.Store(int64(len(s.authCodes)))
	return nil
}

// GetAuthCode retrieves an authorization code without consuming it
func (s *Store) GetAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	_, done := s.obs.Start(ctx, "get_auth_code")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.authCodes[codeHash]
	if !ok {
		return nil, storage.ErrAuthCodeNotFound
	}
	return c.Clone(), nil
}

// DeleteAuthCode removes an authorization code
func (s *Store) DeleteAuthCode(ctx context.Context, codeHash string) (err error) {
	_, done := s.obs.Start(ctx, "delete_auth_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[codeHash]; !ok {
		return storage.ErrAuthCodeNotFound
	}
	delete(s.authCodes, codeHash)
	s.authCodesCount.Store(int64(len(s.authCodes)))
	return nil
}

// ConsumeAuthCode atomically fetches and deletes an authorization code.
// The write lock makes the lookup and the delete one step: of concurrent
// callers, exactly one sees the code.
func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	_, done := s.obs.Start(ctx, "consume_auth_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.authCodes[codeHash]
	if !ok {
		return nil, storage.ErrAuthCodeNotFound
	}
	delete(s.authCodes, codeHash)
	s.authCodesCount.Store(int64(len(s.authCodes)))

	s.logger.Debug("Consumed authorization code",
		"code_hash_prefix", util.SafeTruncate(codeHash, tokenIDLogLength))
	return c, nil
}

// ============================================================
// AccessTokenStore
// ============================================================

// SaveAccessToken stores an access token keyed by its hash
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	_, done := s.obs.Start(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("access token ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessTokens[token.ID] = token.Clone()
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	return nil
}

// GetAccessToken retrieves an access token by hash
func (s *Store) GetAccessToken(ctx context.Context, id string) (token *storage.AccessToken, err error) {
	_, done := s.obs.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.accessTokens[id]
	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}
	return t.Clone(), nil
}

// DeleteAccessToken removes an access token by hash
func (s *Store) DeleteAccessToken(ctx context.Context, id string) (err error) {
	_, done := s.obs.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[id]; !ok {
		return storage.ErrAccessTokenNotFound
	}
	delete(s.accessTokens, id)
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	return nil
}

// DeleteAccessTokensByUser removes every access token of a user for an app
func (s *Store) DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	_, done := s.obs.Start(ctx, "delete_access_tokens_by_user")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.accessTokens {
		if t.UserID == userID && t.AppID == appID {
			delete(s.accessTokens, id)
			n++
		}
	}
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	return n, nil
}

// ============================================================
// RefreshTokenStore
// ============================================================

// SaveRefreshToken stores a refresh token keyed by its hash
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	_, done := s.obs.Start(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("refresh token ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token.ID] = token.Clone()
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	return nil
}

// GetRefreshToken retrieves a refresh token by hash
func (s *Store) GetRefreshToken(ctx context.Context, id string) (token *storage.RefreshToken, err error) {
	_, done := s.obs.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[id]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	return t.Clone(), nil
}

// DeleteRefreshToken removes a refresh token by hash
func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (err error) {
	_, done := s.obs.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[id]; !ok {
		return storage.ErrRefreshTokenNotFound
	}
	delete(s.refreshTokens, id)
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	return nil
}

// UpdateRefreshTokenUsage repoints a refresh token at a new access token
func (s *Store) UpdateRefreshTokenUsage(ctx context.Context, id, accessTokenID string, lastUsedAt time.Time) (err error) {
	_, done := s.obs.Start(ctx, "update_refresh_token_usage")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[id]
	if !ok {
		return storage.ErrRefreshTokenNotFound
	}
	t.AccessTokenID = accessTokenID
	t.LastUsedAt = lastUsedAt
	return nil
}

// DeleteRefreshTokensByUser removes every refresh token of a user for an app
func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	_, done := s.obs.Start(ctx, "delete_refresh_tokens_by_user")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.refreshTokens {
		if t.UserID == userID && t.AppID == appID {
			delete(s.refreshTokens, id)
			n++
		}
	}
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	return n, nil
}

// ============================================================
// AuthorizationStore
// ============================================================

// GetUserAuthorizations lists a user's grants, oldest first
func (s *Store) GetUserAuthorizations(ctx context.Context, userID string) (auths []*storage.UserAuthorization, err error) {
	_, done := s.obs.Start(ctx, "get_user_authorizations")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	auths = []*storage.UserAuthorization{}
	for k, a := range s.authorizations {
		if k.userID == userID {
			auths = append(auths, a.Clone())
		}
	}
	sort.Slice(auths, func(i, j int) bool {
		if auths[i].GrantedAt.Equal(auths[j].GrantedAt) {
			return auths[i].ID < auths[j].ID
		}
		return auths[i].GrantedAt.Before(auths[j].GrantedAt)
	})
	return auths, nil
}

// SaveUserAuthorization upserts the grant for (UserID, AppID)
func (s *Store) SaveUserAuthorization(ctx context.Context, auth *storage.UserAuthorization) (err error) {
	_, done := s.obs.Start(ctx, "save_user_authorization")
	defer func() { done(err) }()

	if auth == nil || auth.UserID == "" || auth.AppID == "" {
		return fmt.Errorf("user ID and app ID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := authKey{userID: auth.UserID, appID: auth.AppID}
	record := auth.Clone()
	if existing, ok := s.authorizations[key]; ok {
		record.ID = existing.ID
	}
	if record.ID == "" {
		record.ID = util.NewID(record.GrantedAt)
	}
	s.authorizations[key] = record
	s.authorizationsCount.Store(int64(len(s.authorizations)))
	return nil
}

// DeleteUserAuthorization removes the grant for (userID, appID)
func (s *Store) DeleteUserAuthorization(ctx context.Context, userID, appID string) (err error) {
	_, done := s.obs.Start(ctx, "delete_user_authorization")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := authKey{userID: userID, appID: appID}
	if _, ok := s.authorizations[key]; !ok {
		return storage.ErrAuthorizationNotFound
	}
	delete(s.authorizations, key)
	s.authorizationsCount.Store(int64(len(s.authorizations)))
	return nil
}

// ============================================================
// Cleanup
// ============================================================

// DeleteExpired removes codes and tokens whose expiry is before now
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (res storage.SweepResult, err error) {
	_, done := s.obs.Start(ctx, "delete_expired")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.authCodes {
		if now.After(c.ExpiresAt) {
			delete(s.authCodes, k)
			res.AuthCodes++
		}
	}
	for k, t := range s.accessTokens {
		if now.After(t.ExpiresAt) {
			delete(s.accessTokens, k)
			res.AccessTokens++
		}
	}
	for k, t := range s.refreshTokens {
		if now.After(t.ExpiresAt) {
			delete(s.refreshTokens, k)
			res.RefreshTokens++
		}
	}
	s.syncCounters()
	return res, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.RLock()
	now, logger := s.clock.Now(), s.logger
	s.mu.RUnlock()

	res, err := s.DeleteExpired(context.Background(), now)
	if err != nil {
		logger.Warn("Expired row sweep failed", "error", err)
		return
	}
	if res.Total() > 0 {
		logger.Debug("Cleaned up expired entries",
			"auth_codes", res.AuthCodes,
			"access_tokens", res.AccessTokens,
			"refresh_tokens", res.RefreshTokens)
	}
}
