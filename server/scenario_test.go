package server

import (
	"context"
	"slices"
	"testing"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/internal/testutil"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/memory"
)

// TestAuthorizationCodeFlow_EndToEnd walks a public client through
// registration, authorization, exchange, validation and refresh.
func TestAuthorizationCodeFlow_EndToEnd(t *testing.T) {
	ctx := context.Background()

	store := memory.New()
	defer store.Stop()

	srv, err := New(store, nil, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	client, _, err := srv.RegisterClient(ctx, ClientRegistration{
		AppID:         "app-c",
		AppName:       "Client C",
		ClientType:    storage.ClientTypePublic,
		RedirectURIs:  []string{"https://app.test/cb"},
		AllowedScopes: []string{"profile:read", "characters:read"},
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	verifier := security.GenerateCodeVerifier()
	challenge := security.GenerateCodeChallenge(verifier)

	validated, err := srv.ValidateAuthorizationRequest(ctx, &oauth.AuthorizationRequest{
		ResponseType:        oauth.ResponseTypeCode,
		ClientID:            client.ClientID,
		RedirectURI:         "https://app.test/cb",
		Scope:               "profile:read",
		State:               testutil.GenerateRandomString(oauth.MinStateLength),
		CodeChallenge:       challenge,
		CodeChallengeMethod: oauth.PKCEMethodS256,
	})
	if err != nil {
		t.Fatalf("ValidateAuthorizationRequest() error = %v", err)
	}

	code, err := srv.CreateAuthorizationCode(ctx, AuthorizationCodeParams{
		ClientID:      validated.Client.ClientID,
		UserID:        testUserID,
		RedirectURI:   "https://app.test/cb",
		Scopes:        validated.Scopes,
		CodeChallenge: challenge,
	})
	if err != nil {
		t.Fatalf("CreateAuthorizationCode() error = %v", err)
	}

	tokens, err := srv.ExchangeCode(ctx, &oauth.TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.test/cb",
		ClientID:     client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("missing tokens in response")
	}
	if tokens.Scope != "profile:read" {
		t.Errorf("Scope = %q, want profile:read", tokens.Scope)
	}
	if tokens.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", tokens.ExpiresIn)
	}

	at, err := srv.ValidateAccessToken(ctx, tokens.AccessToken)
	if err != nil || at == nil {
		t.Fatalf("ValidateAccessToken() = %v, %v", at, err)
	}
	if !slices.Equal(at.Scopes, []string{"profile:read"}) {
		t.Errorf("Scopes = %v, want [profile:read]", at.Scopes)
	}

	refreshed, err := srv.RefreshAccessToken(ctx, &oauth.RefreshRequest{
		GrantType:    oauth.GrantTypeRefreshToken,
		RefreshToken: tokens.RefreshToken,
		ClientID:     client.ClientID,
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == tokens.AccessToken {
		t.Error("refresh did not mint a new access token")
	}

	if old, err := srv.ValidateAccessToken(ctx, tokens.AccessToken); err != nil || old != nil {
		t.Errorf("old access token = %v, %v; want nil after refresh", old, err)
	}
	if current, err := srv.ValidateAccessToken(ctx, refreshed.AccessToken); err != nil || current == nil {
		t.Errorf("new access token = %v, %v", current, err)
	}

	auths, err := srv.GetUserAuthorizations(ctx, testUserID)
	if err != nil || len(auths) != 1 || auths[0].AppName != "Client C" {
		t.Errorf("GetUserAuthorizations() = %v, %v", auths, err)
	}
}
