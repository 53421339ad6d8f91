package server

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/mock"
)

func TestServer_ValidateAccessToken(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	issued := exchange(t, srv, "profile:read", "characters:read")
	writesBefore := store.CallCount(mock.OpDeleteAccessToken) + store.CallCount(mock.OpSaveAccessToken)

	at, err := srv.ValidateAccessToken(ctx, issued.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if at == nil {
		t.Fatal("ValidateAccessToken() = nil, want token")
	}
	if at.UserID != testUserID || at.AppID != "app-"+testClientID {
		t.Errorf("owner = %s/%s", at.AppID, at.UserID)
	}
	if !slices.Equal(at.Scopes, []string{"profile:read", "characters:read"}) {
		t.Errorf("Scopes = %v", at.Scopes)
	}

	writesAfter := store.CallCount(mock.OpDeleteAccessToken) + store.CallCount(mock.OpSaveAccessToken)
	if writesAfter != writesBefore {
		t.Error("validating a live token wrote to storage")
	}
}

func TestServer_ValidateAccessToken_Missing(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	for _, token := range []string{"", "sparc_at_unknown", "garbage"} {
		at, err := srv.ValidateAccessToken(ctx, token)
		if err != nil || at != nil {
			t.Errorf("ValidateAccessToken(%q) = %v, %v; want nil, nil", token, at, err)
		}
	}
}

func TestServer_ValidateAccessToken_RefreshTokenRejected(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	issued := exchange(t, srv, "profile:read")
	at, err := srv.ValidateAccessToken(context.Background(), issued.RefreshToken)
	if err != nil || at != nil {
		t.Errorf("refresh token validated as access token: %v, %v", at, err)
	}
}

func TestServer_ValidateAccessToken_Expired(t *testing.T) {
	srv, store, clock := setupTestServer(t)
	ctx := context.Background()

	issued := exchange(t, srv, "profile:read")

	clock.Advance(DefaultAccessTokenTTL * time.Second)
	if at, _ := srv.ValidateAccessToken(ctx, issued.AccessToken); at == nil {
		t.Fatal("token should be valid exactly at ExpiresAt")
	}

	clock.Advance(time.Second)
	at, err := srv.ValidateAccessToken(ctx, issued.AccessToken)
	if err != nil || at != nil {
		t.Fatalf("ValidateAccessToken(expired) = %v, %v; want nil, nil", at, err)
	}

	_, err = store.Inner().GetAccessToken(ctx, security.HashToken(issued.AccessToken))
	if !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("expired access token still stored (err = %v)", err)
	}
}
