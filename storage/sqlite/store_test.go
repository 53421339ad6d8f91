package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "oauth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Backend {
		return newTestStore(t)
	})
}

func TestStore_ApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())

	version, dirty, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestStore_MigrationVersionBeforeMigrate(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Zero(t, version)
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestStore_ClientWithoutRedirectURIs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveClient(ctx, &storage.Client{
		ClientID:   "bare",
		AppID:      "app-bare",
		ClientType: storage.ClientTypePublic,
		CreatedAt:  time.Now(),
	}))

	got, err := s.GetClient(ctx, "bare")
	require.NoError(t, err)
	assert.Empty(t, got.RedirectURIs)
	assert.Empty(t, got.AllowedScopes)
}

func TestStore_DataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.SaveUserAuthorization(ctx, &storage.UserAuthorization{
		UserID:    "user-1",
		AppID:     "app-1",
		AppName:   "Dice Companion",
		Scopes:    []string{"dice:roll"},
		GrantedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.ApplyMigrations())

	list, err := reopened.GetUserAuthorizations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"dice:roll"}, list[0].Scopes)
}
