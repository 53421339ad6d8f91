package server

import (
	"context"
	"errors"
	"testing"
	"time"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/internal/testutil"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/mock"
)

func TestServer_GetUserAuthorizations(t *testing.T) {
	srv, store, clock := setupTestServer(t)
	ctx := context.Background()

	auths, err := srv.GetUserAuthorizations(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetUserAuthorizations() error = %v", err)
	}
	if auths == nil || len(auths) != 0 {
		t.Errorf("GetUserAuthorizations() = %v, want empty slice", auths)
	}

	other := testutil.TestClient("other", "https://other.test/cb", "profile:read")
	if err := store.SaveClient(ctx, other); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	exchange(t, srv, "profile:read")
	clock.Advance(time.Minute)

	verifier, challenge := testutil.GeneratePKCEPair()
	code, err := srv.CreateAuthorizationCode(ctx, AuthorizationCodeParams{
		ClientID:      "other",
		UserID:        testUserID,
		RedirectURI:   "https://other.test/cb",
		Scopes:        []string{"profile:read"},
		CodeChallenge: challenge,
	})
	if err != nil {
		t.Fatalf("CreateAuthorizationCode() error = %v", err)
	}
	req := tokenRequest(code, verifier)
	req.ClientID = "other"
	req.RedirectURI = "https://other.test/cb"
	if _, err := srv.ExchangeCode(ctx, req); err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	auths, err = srv.GetUserAuthorizations(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetUserAuthorizations() error = %v", err)
	}
	if len(auths) != 2 {
		t.Fatalf("got %d authorizations, want 2", len(auths))
	}
	if auths[0].AppID != "app-"+testClientID || auths[1].AppID != "app-other" {
		t.Errorf("order = %s, %s; want oldest first", auths[0].AppID, auths[1].AppID)
	}
}

func TestServer_RevokeAuthorization(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()
	appID := "app-" + testClientID

	first := exchange(t, srv, "profile:read")
	second := exchange(t, srv, "profile:read")

	if err := srv.RevokeAuthorization(ctx, testUserID, appID); err != nil {
		t.Fatalf("RevokeAuthorization() error = %v", err)
	}

	for _, issued := range []*oauth.TokenResponse{first, second} {
		if at, err := srv.ValidateAccessToken(ctx, issued.AccessToken); err != nil || at != nil {
			t.Errorf("access token survived revocation: %v, %v", at, err)
		}
		_, err := srv.RefreshAccessToken(ctx, refreshRequest(issued.RefreshToken))
		assertOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
	}

	auths, err := srv.GetUserAuthorizations(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetUserAuthorizations() error = %v", err)
	}
	if len(auths) != 0 {
		t.Errorf("authorization record survived revocation: %v", auths)
	}

	// Revoking again is a no-op.
	if err := srv.RevokeAuthorization(ctx, testUserID, appID); err != nil {
		t.Errorf("second RevokeAuthorization() error = %v", err)
	}
	if n := store.CallCount(mock.OpDeleteUserAuthorization); n != 2 {
		t.Errorf("DeleteUserAuthorization called %d times, want 2", n)
	}
}

func TestServer_RevokeAuthorization_OtherUsersUntouched(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	mine := exchange(t, srv, "profile:read")

	verifier, challenge := testutil.GeneratePKCEPair()
	code, err := srv.CreateAuthorizationCode(ctx, AuthorizationCodeParams{
		ClientID:      testClientID,
		UserID:        "someone-else",
		RedirectURI:   testRedirectURI,
		Scopes:        []string{"profile:read"},
		CodeChallenge: challenge,
	})
	if err != nil {
		t.Fatalf("CreateAuthorizationCode() error = %v", err)
	}
	theirs, err := srv.ExchangeCode(ctx, tokenRequest(code, verifier))
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if err := srv.RevokeAuthorization(ctx, testUserID, "app-"+testClientID); err != nil {
		t.Fatalf("RevokeAuthorization() error = %v", err)
	}

	if at, _ := srv.ValidateAccessToken(ctx, mine.AccessToken); at != nil {
		t.Error("revoked user's token still valid")
	}
	if at, _ := srv.ValidateAccessToken(ctx, theirs.AccessToken); at == nil {
		t.Error("another user's token was revoked")
	}
}

func TestServer_RevokeAuthorization_RetainRefreshTokens(t *testing.T) {
	store := mock.New()
	defer store.Stop()
	ctx := context.Background()

	srv, err := New(store, &Config{RetainRefreshTokensOnRevocation: true}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.SaveClient(ctx, testutil.TestClient(testClientID, testRedirectURI, "profile:read")); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	issued := exchange(t, srv, "profile:read")
	if err := srv.RevokeAuthorization(ctx, testUserID, "app-"+testClientID); err != nil {
		t.Fatalf("RevokeAuthorization() error = %v", err)
	}

	if n := store.CallCount(mock.OpDeleteRefreshTokensByUser); n != 0 {
		t.Errorf("DeleteRefreshTokensByUser called %d times", n)
	}
	if _, err := srv.RefreshAccessToken(ctx, refreshRequest(issued.RefreshToken)); err != nil {
		t.Errorf("retained refresh token should still work: %v", err)
	}
}

func TestServer_RevokeAuthorization_InvalidRequest(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	err := srv.RevokeAuthorization(context.Background(), "", "app")
	assertOAuthError(t, err, oauth.ErrorCodeInvalidRequest)
}

func TestServer_RevokeToken(t *testing.T) {
	ctx := context.Background()

	t.Run("access token", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		issued := exchange(t, srv, "profile:read")

		if err := srv.RevokeToken(ctx, issued.AccessToken, testClientID); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if at, _ := srv.ValidateAccessToken(ctx, issued.AccessToken); at != nil {
			t.Error("access token still valid")
		}
		if _, err := srv.RefreshAccessToken(ctx, refreshRequest(issued.RefreshToken)); err != nil {
			t.Errorf("refresh token should survive access token revocation: %v", err)
		}
	})

	t.Run("refresh token revokes its access token", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		issued := exchange(t, srv, "profile:read")

		if err := srv.RevokeToken(ctx, issued.RefreshToken, testClientID); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if at, _ := srv.ValidateAccessToken(ctx, issued.AccessToken); at != nil {
			t.Error("backed access token still valid")
		}
		_, err := srv.RefreshAccessToken(ctx, refreshRequest(issued.RefreshToken))
		assertOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("unprefixed token", func(t *testing.T) {
		srv, store, _ := setupTestServer(t)
		raw := security.GenerateToken("")
		err := store.SaveRefreshToken(ctx, &storage.RefreshToken{
			ID:        security.HashToken(raw),
			AppID:     "app-" + testClientID,
			UserID:    testUserID,
			ExpiresAt: testEpoch.Add(time.Hour),
			CreatedAt: testEpoch,
		})
		if err != nil {
			t.Fatalf("SaveRefreshToken() error = %v", err)
		}

		if err := srv.RevokeToken(ctx, raw, testClientID); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if _, err := store.Inner().GetRefreshToken(ctx, security.HashToken(raw)); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
			t.Errorf("unprefixed refresh token not revoked (err = %v)", err)
		}
	})

	t.Run("unknown token succeeds", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		if err := srv.RevokeToken(ctx, "sparc_at_unknown", testClientID); err != nil {
			t.Errorf("RevokeToken(unknown) error = %v", err)
		}
	})

	t.Run("token of another app is kept", func(t *testing.T) {
		srv, store, _ := setupTestServer(t)
		if err := store.SaveClient(ctx, testutil.TestClient("other", testRedirectURI, "profile:read")); err != nil {
			t.Fatalf("SaveClient() error = %v", err)
		}
		issued := exchange(t, srv, "profile:read")

		if err := srv.RevokeToken(ctx, issued.AccessToken, "other"); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if at, _ := srv.ValidateAccessToken(ctx, issued.AccessToken); at == nil {
			t.Error("another app revoked the token")
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		err := srv.RevokeToken(ctx, "sparc_at_x", "nope")
		assertOAuthError(t, err, oauth.ErrorCodeInvalidClient)
	})

	t.Run("empty token", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		err := srv.RevokeToken(ctx, "", testClientID)
		assertOAuthError(t, err, oauth.ErrorCodeInvalidRequest)
	})
}
