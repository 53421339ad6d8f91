package valkey

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/storagetest"
)

// testStore creates a test store connected to a local Valkey instance.
// Tests will be skipped if the connection fails.
// Each test gets a unique prefix to ensure test isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("sparctest:%s:", strings.ReplaceAll(t.Name(), "/", ":"))

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Backend {
		return testStore(t)
	})
}

func TestStore_CodeKeyHasTTL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	hash := security.HashToken("ttl-code")
	require.NoError(t, s.SaveAuthCode(ctx, &storage.AuthorizationCode{
		CodeHash:  hash,
		ClientID:  "client",
		UserID:    "user",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		CreatedAt: time.Now(),
	}))

	ttl, err := s.client.Do(ctx, s.client.B().Pttl().Key(s.entryKey(kindCode, hash)).Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(10*time.Minute/time.Millisecond))
	assert.LessOrEqual(t, ttl, int64((10*time.Minute+DefaultExpiryGrace)/time.Millisecond))
}

func TestStore_DeleteByUserRemovesSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAccessToken(ctx, &storage.AccessToken{
		ID:        security.HashToken("a"),
		AppID:     "app",
		UserID:    "user",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	n, err := s.DeleteAccessTokensByUser(ctx, "user", "app")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := s.client.Do(ctx, s.client.B().Exists().Key(s.userTokensKey(kindAccessToken, "user", "app")).Build()).AsInt64()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestKeyTTL(t *testing.T) {
	s := &Store{expiryGrace: time.Hour}

	assert.Equal(t, minKeyTTL, s.keyTTL(time.Now().Add(-2*time.Hour)))
	assert.InDelta(t, float64(2*time.Hour), float64(s.keyTTL(time.Now().Add(time.Hour))), float64(time.Second))
}

func TestMillisRoundTrip(t *testing.T) {
	assert.True(t, fromMillis(toMillis(time.Time{})).IsZero())

	now := time.Now().Truncate(time.Millisecond)
	assert.True(t, now.Equal(fromMillis(toMillis(now))))
}
