// Package mock provides a recording storage.Store for testing. It delegates
// to an in-memory store, counts calls, keeps a copy of everything written
// and can fail any operation on demand.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/memory"
)

// Operation names accepted by FailOn and reported in CallCounts.
const (
	OpGetClient                 = "GetClient"
	OpSaveClient                = "SaveClient"
	OpDeleteClient              = "DeleteClient"
	OpSaveAuthCode              = "SaveAuthCode"
	OpGetAuthCode               = "GetAuthCode"
	OpDeleteAuthCode            = "DeleteAuthCode"
	OpConsumeAuthCode           = "ConsumeAuthCode"
	OpSaveAccessToken           = "SaveAccessToken"
	OpGetAccessToken            = "GetAccessToken"
	OpDeleteAccessToken         = "DeleteAccessToken"
	OpDeleteAccessTokensByUser  = "DeleteAccessTokensByUser"
	OpSaveRefreshToken          = "SaveRefreshToken"
	OpGetRefreshToken           = "GetRefreshToken"
	OpDeleteRefreshToken        = "DeleteRefreshToken"
	OpUpdateRefreshTokenUsage   = "UpdateRefreshTokenUsage"
	OpDeleteRefreshTokensByUser = "DeleteRefreshTokensByUser"
	OpGetUserAuthorizations     = "GetUserAuthorizations"
	OpSaveUserAuthorization     = "SaveUserAuthorization"
	OpDeleteUserAuthorization   = "DeleteUserAuthorization"
	OpDeleteExpired             = "DeleteExpired"
)

// Store is a recording wrapper around memory.Store.
type Store struct {
	inner *memory.Store

	mu         sync.Mutex
	failures   map[string]error
	callCounts map[string]int

	savedAuthCodes      []*storage.AuthorizationCode
	savedAccessTokens   []*storage.AccessToken
	savedRefreshTokens  []*storage.RefreshToken
	savedAuthorizations []*storage.UserAuthorization
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.Sweeper        = (*Store)(nil)
)

// New creates an empty mock store.
func New() *Store {
	return &Store{
		inner:      memory.New(),
		failures:   make(map[string]error),
		callCounts: make(map[string]int),
	}
}

// Inner returns the backing memory store, for seeding state directly.
func (m *Store) Inner() *memory.Store {
	return m.inner
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (m *Store) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// CallCount returns how many times op has been called.
func (m *Store) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[op]
}

// SavedAuthCodes returns copies of every code passed to SaveAuthCode.
func (m *Store) SavedAuthCodes() []*storage.AuthorizationCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.AuthorizationCode(nil), m.savedAuthCodes...)
}

// SavedAccessTokens returns copies of every token passed to SaveAccessToken.
func (m *Store) SavedAccessTokens() []*storage.AccessToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.AccessToken(nil), m.savedAccessTokens...)
}

// SavedRefreshTokens returns copies of every token passed to SaveRefreshToken.
func (m *Store) SavedRefreshTokens() []*storage.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.RefreshToken(nil), m.savedRefreshTokens...)
}

// SavedAuthorizations returns copies of every record passed to
// SaveUserAuthorization.
func (m *Store) SavedAuthorizations() []*storage.UserAuthorization {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.UserAuthorization(nil), m.savedAuthorizations...)
}

// Stop stops the backing store.
func (m *Store) Stop() {
	m.inner.Stop()
}

// call records op and returns the injected failure, if any.
func (m *Store) call(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[op]++
	return m.failures[op]
}

func (m *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if err := m.call(OpGetClient); err != nil {
		return nil, err
	}
	return m.inner.GetClient(ctx, clientID)
}

func (m *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if err := m.call(OpSaveClient); err != nil {
		return err
	}
	return m.inner.SaveClient(ctx, client)
}

func (m *Store) DeleteClient(ctx context.Context, clientID string) error {
	if err := m.call(OpDeleteClient); err != nil {
		return err
	}
	return m.inner.DeleteClient(ctx, clientID)
}

func (m *Store) SaveAuthCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if err := m.call(OpSaveAuthCode); err != nil {
		return err
	}
	if code != nil {
		m.mu.Lock()
		m.savedAuthCodes = append(m.savedAuthCodes, code.Clone())
		m.mu.Unlock()
	}
	return m.inner.SaveAuthCode(ctx, code)
}

func (m *Store) GetAuthCode(ctx context.Context, codeHash string) (*storage.AuthorizationCode, error) {
	if err := m.call(OpGetAuthCode); err != nil {
		return nil, err
	}
	return m.inner.GetAuthCode(ctx, codeHash)
}

func (m *Store) DeleteAuthCode(ctx context.Context, codeHash string) error {
	if err := m.call(OpDeleteAuthCode); err != nil {
		return err
	}
	return m.inner.DeleteAuthCode(ctx, codeHash)
}

func (m *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (*storage.AuthorizationCode, error) {
	if err := m.call(OpConsumeAuthCode); err != nil {
		return nil, err
	}
	return m.inner.ConsumeAuthCode(ctx, codeHash)
}

func (m *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if err := m.call(OpSaveAccessToken); err != nil {
		return err
	}
	if token != nil {
		m.mu.Lock()
		m.savedAccessTokens = append(m.savedAccessTokens, token.Clone())
		m.mu.Unlock()
	}
	return m.inner.SaveAccessToken(ctx, token)
}

func (m *Store) GetAccessToken(ctx context.Context, id string) (*storage.AccessToken, error) {
	if err := m.call(OpGetAccessToken); err != nil {
		return nil, err
	}
	return m.inner.GetAccessToken(ctx, id)
}

func (m *Store) DeleteAccessToken(ctx context.Context, id string) error {
	if err := m.call(OpDeleteAccessToken); err != nil {
		return err
	}
	return m.inner.DeleteAccessToken(ctx, id)
}

func (m *Store) DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (int, error) {
	if err := m.call(OpDeleteAccessTokensByUser); err != nil {
		return 0, err
	}
	return m.inner.DeleteAccessTokensByUser(ctx, userID, appID)
}

func (m *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if err := m.call(OpSaveRefreshToken); err != nil {
		return err
	}
	if token != nil {
		m.mu.Lock()
		m.savedRefreshTokens = append(m.savedRefreshTokens, token.Clone())
		m.mu.Unlock()
	}
	return m.inner.SaveRefreshToken(ctx, token)
}

func (m *Store) GetRefreshToken(ctx context.Context, id string) (*storage.RefreshToken, error) {
	if err := m.call(OpGetRefreshToken); err != nil {
		return nil, err
	}
	return m.inner.GetRefreshToken(ctx, id)
}

func (m *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	if err := m.call(OpDeleteRefreshToken); err != nil {
		return err
	}
	return m.inner.DeleteRefreshToken(ctx, id)
}

func (m *Store) UpdateRefreshTokenUsage(ctx context.Context, id, accessTokenID string, lastUsedAt time.Time) error {
	if err := m.call(OpUpdateRefreshTokenUsage); err != nil {
		return err
	}
	return m.inner.UpdateRefreshTokenUsage(ctx, id, accessTokenID, lastUsedAt)
}

func (m *Store) DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (int, error) {
	if err := m.call(OpDeleteRefreshTokensByUser); err != nil {
		return 0, err
	}
	return m.inner.DeleteRefreshTokensByUser(ctx, userID, appID)
}

func (m *Store) GetUserAuthorizations(ctx context.Context, userID string) ([]*storage.UserAuthorization, error) {
	if err := m.call(OpGetUserAuthorizations); err != nil {
		return nil, err
	}
	return m.inner.GetUserAuthorizations(ctx, userID)
}

func (m *Store) SaveUserAuthorization(ctx context.Context, auth *storage.UserAuthorization) error {
	if err := m.call(OpSaveUserAuthorization); err != nil {
		return err
	}
	if auth != nil {
		m.mu.Lock()
		m.savedAuthorizations = append(m.savedAuthorizations, auth.Clone())
		m.mu.Unlock()
	}
	return m.inner.SaveUserAuthorization(ctx, auth)
}

func (m *Store) DeleteUserAuthorization(ctx context.Context, userID, appID string) error {
	if err := m.call(OpDeleteUserAuthorization); err != nil {
		return err
	}
	return m.inner.DeleteUserAuthorization(ctx, userID, appID)
}

func (m *Store) DeleteExpired(ctx context.Context, now time.Time) (storage.SweepResult, error) {
	if err := m.call(OpDeleteExpired); err != nil {
		return storage.SweepResult{}, err
	}
	return m.inner.DeleteExpired(ctx, now)
}
