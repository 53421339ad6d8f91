// Package server implements the authorization server core.
//
// The Server type runs the authorization code flow with mandatory PKCE
// (S256), the refresh_token grant, bearer token validation and the per-user
// authorization ledger over an injected storage.Store. It has no HTTP
// surface: every operation takes parsed request values and returns either a
// result or an *oauth.OAuthError for the transport layer to serialize.
//
// Credentials are opaque random strings. Only their SHA-256 hashes reach
// storage, and the plaintext is returned to the caller exactly once.
//
// Key Features:
//   - Single-use authorization codes, consumed atomically before any other check
//   - Exact redirect URI matching and scope containment against the client
//   - Refresh invalidates the previous access token immediately
//   - Lazy expiry: expired tokens are deleted when presented
//   - Security auditing with per user:client rate limiting
//   - OpenTelemetry metrics and tracing
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, &server.Config{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	validated, err := srv.ValidateAuthorizationRequest(ctx, req)
//	// ask the resource owner to approve validated.Scopes, then:
//	code, err := srv.CreateAuthorizationCode(ctx, server.AuthorizationCodeParams{...})
//
//	resp, err := srv.ExchangeCode(ctx, tokenReq)
package server
