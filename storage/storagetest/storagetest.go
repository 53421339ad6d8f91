// Package storagetest is the conformance suite for storage backends. Each
// backend's tests call Run with a factory returning a fresh, empty store.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// Backend is everything a full storage implementation provides.
type Backend interface {
	storage.Store
	storage.ClientRegistry
	storage.Sweeper
}

// Factory returns an empty backend. Cleanup should be registered on t.
type Factory func(t *testing.T) Backend

// Run executes the full conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("AuthCodes", func(t *testing.T) { testAuthCodes(t, newStore(t)) })
	t.Run("ConsumeAuthCodeConcurrent", func(t *testing.T) { testConsumeConcurrent(t, newStore(t)) })
	t.Run("AccessTokens", func(t *testing.T) { testAccessTokens(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("UserAuthorizations", func(t *testing.T) { testAuthorizations(t, newStore(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newStore(t)) })
}

// now is second-aligned so every backend round-trips it exactly.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func assertTimeEqual(t *testing.T, want, got time.Time, field string) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "%s = %v, want %v", field, got, want)
}

func testClients(t *testing.T, s Backend) {
	ctx := context.Background()

	_, err := s.GetClient(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrClientNotFound)
	require.ErrorIs(t, err, storage.ErrNotFound)

	client := &storage.Client{
		ClientID:         "client-1",
		ClientSecretHash: security.HashToken("secret"),
		AppID:            "app-1",
		AppName:          "Dice Companion",
		RedirectURIs:     []string{"https://app.test/cb", "https://app.test/cb2"},
		AllowedScopes:    []string{"profile:read", "characters:read"},
		ClientType:       storage.ClientTypeConfidential,
		CreatedAt:        now(),
	}
	require.NoError(t, s.SaveClient(ctx, client))

	got, err := s.GetClient(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, got.ClientID)
	assert.Equal(t, client.ClientSecretHash, got.ClientSecretHash)
	assert.Equal(t, client.AppID, got.AppID)
	assert.Equal(t, client.AppName, got.AppName)
	assert.Equal(t, client.RedirectURIs, got.RedirectURIs)
	assert.Equal(t, client.AllowedScopes, got.AllowedScopes)
	assert.Equal(t, client.ClientType, got.ClientType)

	// Mutating the returned value must not change the stored client.
	got.RedirectURIs[0] = "https://evil.test/cb"
	again, err := s.GetClient(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/cb", again.RedirectURIs[0])

	client.AppName = "Renamed"
	require.NoError(t, s.SaveClient(ctx, client))
	got, err = s.GetClient(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.AppName)

	require.NoError(t, s.DeleteClient(ctx, "client-1"))
	require.ErrorIs(t, s.DeleteClient(ctx, "client-1"), storage.ErrClientNotFound)
	_, err = s.GetClient(ctx, "client-1")
	require.ErrorIs(t, err, storage.ErrClientNotFound)
}

func newCode(hash string, expiresAt time.Time) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		CodeHash:      hash,
		ClientID:      "client-1",
		UserID:        "user-1",
		RedirectURI:   "https://app.test/cb",
		Scopes:        []string{"profile:read", "characters:read"},
		CodeChallenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		ExpiresAt:     expiresAt,
		CreatedAt:     now(),
	}
}

func testAuthCodes(t *testing.T, s Backend) {
	ctx := context.Background()
	hash := security.HashToken(security.GenerateToken(security.PrefixAuthorizationCode))
	code := newCode(hash, now().Add(10*time.Minute))

	_, err := s.GetAuthCode(ctx, hash)
	require.ErrorIs(t, err, storage.ErrAuthCodeNotFound)

	require.NoError(t, s.SaveAuthCode(ctx, code))
	require.ErrorIs(t, s.SaveAuthCode(ctx, code), storage.ErrAlreadyExists)

	got, err := s.GetAuthCode(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, code.ClientID, got.ClientID)
	assert.Equal(t, code.UserID, got.UserID)
	assert.Equal(t, code.RedirectURI, got.RedirectURI)
	assert.Equal(t, code.Scopes, got.Scopes)
	assert.Equal(t, code.CodeChallenge, got.CodeChallenge)
	assertTimeEqual(t, code.ExpiresAt, got.ExpiresAt, "ExpiresAt")
	assertTimeEqual(t, code.CreatedAt, got.CreatedAt, "CreatedAt")

	consumed, err := s.ConsumeAuthCode(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, code.UserID, consumed.UserID)

	_, err = s.ConsumeAuthCode(ctx, hash)
	require.ErrorIs(t, err, storage.ErrAuthCodeNotFound)
	_, err = s.GetAuthCode(ctx, hash)
	require.ErrorIs(t, err, storage.ErrAuthCodeNotFound)

	other := newCode(security.HashToken("other"), now().Add(time.Minute))
	require.NoError(t, s.SaveAuthCode(ctx, other))
	require.NoError(t, s.DeleteAuthCode(ctx, other.CodeHash))
	require.ErrorIs(t, s.DeleteAuthCode(ctx, other.CodeHash), storage.ErrAuthCodeNotFound)
}

func testConsumeConcurrent(t *testing.T, s Backend) {
	ctx := context.Background()
	hash := security.HashToken("race")
	require.NoError(t, s.SaveAuthCode(ctx, newCode(hash, now().Add(time.Minute))))

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
		failures []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ConsumeAuthCode(ctx, hash)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case storage.IsNotFound(err):
				notFound++
			default:
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, wins, "exactly one consumer must win")
	assert.Equal(t, workers-1, notFound)
}

func newAccessToken(userID, appID string, expiresAt time.Time) *storage.AccessToken {
	return &storage.AccessToken{
		ID:        security.HashToken(security.GenerateToken(security.PrefixAccessToken)),
		AppID:     appID,
		UserID:    userID,
		Scopes:    []string{"profile:read"},
		ExpiresAt: expiresAt,
		CreatedAt: now(),
	}
}

func testAccessTokens(t *testing.T, s Backend) {
	ctx := context.Background()
	exp := now().Add(time.Hour)

	tok := newAccessToken("user-1", "app-1", exp)
	_, err := s.GetAccessToken(ctx, tok.ID)
	require.ErrorIs(t, err, storage.ErrAccessTokenNotFound)

	require.NoError(t, s.SaveAccessToken(ctx, tok))
	got, err := s.GetAccessToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.AppID, got.AppID)
	assert.Equal(t, tok.UserID, got.UserID)
	assert.Equal(t, tok.Scopes, got.Scopes)
	assertTimeEqual(t, tok.ExpiresAt, got.ExpiresAt, "ExpiresAt")

	require.NoError(t, s.DeleteAccessToken(ctx, tok.ID))
	require.ErrorIs(t, s.DeleteAccessToken(ctx, tok.ID), storage.ErrAccessTokenNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveAccessToken(ctx, newAccessToken("user-1", "app-1", exp)))
	}
	keepOtherApp := newAccessToken("user-1", "app-2", exp)
	keepOtherUser := newAccessToken("user-2", "app-1", exp)
	require.NoError(t, s.SaveAccessToken(ctx, keepOtherApp))
	require.NoError(t, s.SaveAccessToken(ctx, keepOtherUser))

	n, err := s.DeleteAccessTokensByUser(ctx, "user-1", "app-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.GetAccessToken(ctx, keepOtherApp.ID)
	require.NoError(t, err)
	_, err = s.GetAccessToken(ctx, keepOtherUser.ID)
	require.NoError(t, err)

	n, err = s.DeleteAccessTokensByUser(ctx, "user-1", "app-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func newRefreshToken(userID, appID, accessTokenID string, expiresAt time.Time) *storage.RefreshToken {
	return &storage.RefreshToken{
		ID:            security.HashToken(security.GenerateToken(security.PrefixRefreshToken)),
		AppID:         appID,
		UserID:        userID,
		Scopes:        []string{"profile:read", "characters:read"},
		AccessTokenID: accessTokenID,
		ExpiresAt:     expiresAt,
		CreatedAt:     now(),
	}
}

func testRefreshTokens(t *testing.T, s Backend) {
	ctx := context.Background()
	exp := now().Add(30 * 24 * time.Hour)

	rt := newRefreshToken("user-1", "app-1", "at-1", exp)
	_, err := s.GetRefreshToken(ctx, rt.ID)
	require.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	require.NoError(t, s.SaveRefreshToken(ctx, rt))
	got, err := s.GetRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessTokenID)
	assert.Equal(t, rt.Scopes, got.Scopes)
	assert.True(t, got.LastUsedAt.IsZero(), "LastUsedAt should start unset")
	assertTimeEqual(t, rt.ExpiresAt, got.ExpiresAt, "ExpiresAt")

	used := now().Add(time.Minute)
	require.NoError(t, s.UpdateRefreshTokenUsage(ctx, rt.ID, "at-2", used))
	got, err = s.GetRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-2", got.AccessTokenID)
	assertTimeEqual(t, used, got.LastUsedAt, "LastUsedAt")

	require.ErrorIs(t, s.UpdateRefreshTokenUsage(ctx, "missing", "at-3", used), storage.ErrRefreshTokenNotFound)

	require.NoError(t, s.DeleteRefreshToken(ctx, rt.ID))
	require.ErrorIs(t, s.DeleteRefreshToken(ctx, rt.ID), storage.ErrRefreshTokenNotFound)

	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("user-1", "app-1", "a", exp)))
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("user-1", "app-1", "b", exp)))
	other := newRefreshToken("user-1", "app-2", "c", exp)
	require.NoError(t, s.SaveRefreshToken(ctx, other))

	n, err := s.DeleteRefreshTokensByUser(ctx, "user-1", "app-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.GetRefreshToken(ctx, other.ID)
	require.NoError(t, err)
}

func testAuthorizations(t *testing.T, s Backend) {
	ctx := context.Background()
	t0 := now()

	list, err := s.GetUserAuthorizations(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.ErrorIs(t, s.DeleteUserAuthorization(ctx, "user-1", "app-1"), storage.ErrAuthorizationNotFound)

	first := &storage.UserAuthorization{
		UserID:    "user-1",
		AppID:     "app-1",
		AppName:   "Dice Companion",
		Scopes:    []string{"profile:read"},
		GrantedAt: t0,
	}
	require.NoError(t, s.SaveUserAuthorization(ctx, first))
	require.NoError(t, s.SaveUserAuthorization(ctx, &storage.UserAuthorization{
		UserID:    "user-1",
		AppID:     "app-2",
		AppName:   "Campaign Planner",
		Scopes:    []string{"campaigns:read"},
		GrantedAt: t0.Add(time.Minute),
	}))
	require.NoError(t, s.SaveUserAuthorization(ctx, &storage.UserAuthorization{
		UserID:    "user-2",
		AppID:     "app-1",
		AppName:   "Dice Companion",
		Scopes:    []string{"profile:read"},
		GrantedAt: t0,
	}))

	list, err = s.GetUserAuthorizations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "app-1", list[0].AppID)
	assert.Equal(t, "app-2", list[1].AppID)
	assert.NotEmpty(t, list[0].ID)
	originalID := list[0].ID

	// Upsert: one record per (user, app), ID preserved.
	require.NoError(t, s.SaveUserAuthorization(ctx, &storage.UserAuthorization{
		UserID:    "user-1",
		AppID:     "app-1",
		AppName:   "Dice Companion",
		Scopes:    []string{"profile:read", "dice:roll"},
		GrantedAt: t0.Add(2 * time.Minute),
	}))
	list, err = s.GetUserAuthorizations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	var updated *storage.UserAuthorization
	for _, a := range list {
		if a.AppID == "app-1" {
			updated = a
		}
	}
	require.NotNil(t, updated)
	assert.Equal(t, originalID, updated.ID)
	assert.Equal(t, []string{"profile:read", "dice:roll"}, updated.Scopes)
	assertTimeEqual(t, t0.Add(2*time.Minute), updated.GrantedAt, "GrantedAt")

	require.NoError(t, s.DeleteUserAuthorization(ctx, "user-1", "app-1"))
	list, err = s.GetUserAuthorizations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "app-2", list[0].AppID)

	list, err = s.GetUserAuthorizations(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testDeleteExpired(t *testing.T, s Backend) {
	ctx := context.Background()
	t0 := now()
	past := t0.Add(-time.Minute)
	future := t0.Add(time.Hour)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.SaveAuthCode(ctx, newCode(security.HashToken(fmt.Sprintf("old-%d", i)), past)))
	}
	require.NoError(t, s.SaveAuthCode(ctx, newCode(security.HashToken("fresh"), future)))

	oldAT := newAccessToken("user-1", "app-1", past)
	freshAT := newAccessToken("user-1", "app-1", future)
	require.NoError(t, s.SaveAccessToken(ctx, oldAT))
	require.NoError(t, s.SaveAccessToken(ctx, freshAT))

	oldRT := newRefreshToken("user-1", "app-1", oldAT.ID, past)
	require.NoError(t, s.SaveRefreshToken(ctx, oldRT))

	res, err := s.DeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, storage.SweepResult{AuthCodes: 2, AccessTokens: 1, RefreshTokens: 1}, res)
	assert.Equal(t, 4, res.Total())

	_, err = s.GetAuthCode(ctx, security.HashToken("fresh"))
	require.NoError(t, err)
	_, err = s.GetAccessToken(ctx, freshAT.ID)
	require.NoError(t, err)
	_, err = s.GetAccessToken(ctx, oldAT.ID)
	require.ErrorIs(t, err, storage.ErrAccessTokenNotFound)
}
