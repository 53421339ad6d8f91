package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/internal/testutil"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage/mock"
)

const (
	testClientID    = "client-test"
	testRedirectURI = "https://app.test/cb"
	testUserID      = "user-123"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer returns a server over a recording store holding one public
// client allowed profile:read and characters:read, with a mock clock.
func setupTestServer(t *testing.T) (*Server, *mock.Store, *testutil.MockTime) {
	t.Helper()

	store := mock.New()
	t.Cleanup(store.Stop)

	srv, err := New(store, &Config{}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clock := testutil.NewMockTime(testEpoch)
	srv.SetClock(clock.Now)

	client := testutil.TestClient(testClientID, testRedirectURI, "profile:read", "characters:read")
	if err := store.SaveClient(context.Background(), client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	return srv, store, clock
}

// issueCode runs a valid authorization request for scopes and returns the
// plaintext code and PKCE verifier.
func issueCode(t *testing.T, srv *Server, scopes ...string) (code, verifier string) {
	t.Helper()

	verifier, challenge := testutil.GeneratePKCEPair()
	code, err := srv.CreateAuthorizationCode(context.Background(), AuthorizationCodeParams{
		ClientID:      testClientID,
		UserID:        testUserID,
		RedirectURI:   testRedirectURI,
		Scopes:        scopes,
		CodeChallenge: challenge,
	})
	if err != nil {
		t.Fatalf("CreateAuthorizationCode() error = %v", err)
	}
	return code, verifier
}

func tokenRequest(code, verifier string) *oauth.TokenRequest {
	return &oauth.TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
		CodeVerifier: verifier,
	}
}

// exchange issues a code and redeems it.
func exchange(t *testing.T, srv *Server, scopes ...string) *oauth.TokenResponse {
	t.Helper()

	code, verifier := issueCode(t, srv, scopes...)
	resp, err := srv.ExchangeCode(context.Background(), tokenRequest(code, verifier))
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	return resp
}

// assertOAuthError fails unless err is an *oauth.OAuthError with code want.
func assertOAuthError(t *testing.T, err error, want oauth.ErrorCode) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var oauthErr *oauth.OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error %v (%T) is not an *oauth.OAuthError", err, err)
	}
	if oauthErr.Code != want {
		t.Errorf("error code = %q, want %q (%v)", oauthErr.Code, want, err)
	}
}

func TestNew(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		if _, err := New(nil, nil, nil); err == nil {
			t.Error("New(nil) should fail")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		store := mock.New()
		defer store.Stop()

		srv, err := New(store, nil, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if srv.Config.AuthorizationCodeTTL != DefaultAuthorizationCodeTTL {
			t.Errorf("AuthorizationCodeTTL = %d, want %d", srv.Config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
		}
		if srv.Config.AccessTokenTTL != DefaultAccessTokenTTL {
			t.Errorf("AccessTokenTTL = %d, want %d", srv.Config.AccessTokenTTL, DefaultAccessTokenTTL)
		}
		if srv.Config.RefreshTokenTTL != DefaultRefreshTokenTTL {
			t.Errorf("RefreshTokenTTL = %d, want %d", srv.Config.RefreshTokenTTL, DefaultRefreshTokenTTL)
		}
		if srv.Logger == nil {
			t.Error("Logger should default to slog.Default()")
		}
		if srv.Store() != store {
			t.Error("Store() should return the store passed to New")
		}
	})

	t.Run("does not modify caller config", func(t *testing.T) {
		store := mock.New()
		defer store.Stop()

		cfg := &Config{}
		if _, err := New(store, cfg, discardLogger()); err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if cfg.AccessTokenTTL != 0 {
			t.Errorf("caller config was modified: AccessTokenTTL = %d", cfg.AccessTokenTTL)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		store := mock.New()
		defer store.Stop()

		if _, err := New(store, &Config{AccessTokenTTL: -1}, discardLogger()); err == nil {
			t.Error("negative TTL should be rejected")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "defaults",
			config: Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: 2592000},
		},
		{
			name:    "negative code ttl",
			config:  Config{AuthorizationCodeTTL: -1, AccessTokenTTL: 3600, RefreshTokenTTL: 2592000},
			wantErr: true,
		},
		{
			name:    "negative refresh ttl",
			config:  Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 3600, RefreshTokenTTL: -5},
			wantErr: true,
		},
		{
			name:    "access outlives refresh",
			config:  Config{AuthorizationCodeTTL: 600, AccessTokenTTL: 7200, RefreshTokenTTL: 3600},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogSecurityWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	applySecureDefaults(&Config{
		AuthorizationCodeTTL:            3600,
		RetainRefreshTokensOnRevocation: true,
	}, logger)

	out := buf.String()
	for _, want := range []string{"Authorization code lifetime is long", "Refresh tokens survive authorization revocation"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected warning %q in log output:\n%s", want, out)
		}
	}
}

func TestServer_SetClock(t *testing.T) {
	srv, store, clock := setupTestServer(t)

	code, _ := issueCode(t, srv, "profile:read")
	if code == "" {
		t.Fatal("empty code")
	}

	saved := store.SavedAuthCodes()
	if len(saved) != 1 {
		t.Fatalf("saved %d codes, want 1", len(saved))
	}
	wantExpiry := clock.Now().Add(DefaultAuthorizationCodeTTL * time.Second)
	if !saved[0].ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", saved[0].ExpiresAt, wantExpiry)
	}

	srv.SetClock(nil)
	if srv.clock == nil {
		t.Error("SetClock(nil) should restore the system clock")
	}
}

func TestServer_AuditRateLimited(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	var buf bytes.Buffer
	srv.SetAuditor(security.NewAuditor(slog.New(slog.NewJSONHandler(&buf, nil)), true))
	limiter := security.NewRateLimiter(security.RateLimiterConfig{PerSecond: 0.001, Burst: 1})
	defer limiter.Stop()
	srv.SetSecurityEventRateLimiter(limiter)

	for range 5 {
		srv.auditAuthFailure(testUserID, testClientID, "test")
	}

	if n := strings.Count(buf.String(), "security_audit"); n != 1 {
		t.Errorf("logged %d audit events, want 1", n)
	}
}

func TestServer_StorageFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	tests := []struct {
		name string
		op   string
		run  func(srv *Server) error
	}{
		{
			name: "authorization request",
			op:   mock.OpGetClient,
			run: func(srv *Server) error {
				_, err := srv.ValidateAuthorizationRequest(ctx, &oauth.AuthorizationRequest{
					ResponseType:        oauth.ResponseTypeCode,
					ClientID:            testClientID,
					RedirectURI:         testRedirectURI,
					Scope:               "profile:read",
					CodeChallenge:       "challenge",
					CodeChallengeMethod: oauth.PKCEMethodS256,
				})
				return err
			},
		},
		{
			name: "code issue",
			op:   mock.OpSaveAuthCode,
			run: func(srv *Server) error {
				_, err := srv.CreateAuthorizationCode(ctx, AuthorizationCodeParams{
					ClientID:      testClientID,
					UserID:        testUserID,
					RedirectURI:   testRedirectURI,
					Scopes:        []string{"profile:read"},
					CodeChallenge: "challenge",
				})
				return err
			},
		},
		{
			name: "code consume",
			op:   mock.OpConsumeAuthCode,
			run: func(srv *Server) error {
				_, err := srv.ExchangeCode(ctx, tokenRequest("sparc_code_x", "verifier"))
				return err
			},
		},
		{
			name: "token validation",
			op:   mock.OpGetAccessToken,
			run: func(srv *Server) error {
				_, err := srv.ValidateAccessToken(ctx, "sparc_at_x")
				return err
			},
		},
		{
			name: "refresh lookup",
			op:   mock.OpGetRefreshToken,
			run: func(srv *Server) error {
				_, err := srv.RefreshAccessToken(ctx, &oauth.RefreshRequest{
					GrantType:    oauth.GrantTypeRefreshToken,
					RefreshToken: "sparc_rt_x",
					ClientID:     testClientID,
				})
				return err
			},
		},
		{
			name: "ledger listing",
			op:   mock.OpGetUserAuthorizations,
			run: func(srv *Server) error {
				_, err := srv.GetUserAuthorizations(ctx, testUserID)
				return err
			},
		},
		{
			name: "revocation",
			op:   mock.OpDeleteAccessTokensByUser,
			run: func(srv *Server) error {
				return srv.RevokeAuthorization(ctx, testUserID, "app-"+testClientID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store, _ := setupTestServer(t)
			store.FailOn(tt.op, boom)

			err := tt.run(srv)
			assertOAuthError(t, err, oauth.ErrorCodeServerError)
			if !errors.Is(err, boom) {
				t.Errorf("server_error should wrap the storage cause, got %v", err)
			}
			if strings.Contains(err.Error(), boom.Error()) {
				t.Errorf("error message leaks the storage cause: %q", err.Error())
			}
		})
	}
}
