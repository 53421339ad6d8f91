package server

import (
	"context"
	"errors"
	"slices"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/scope"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// ExchangeCode redeems an authorization code for an access and refresh
// token pair. Every check is terminal and nothing is persisted unless all
// of them pass. The code is consumed as soon as it is found, so a code that
// fails a later check can never be redeemed again.
func (s *Server) ExchangeCode(ctx context.Context, req *oauth.TokenRequest) (_ *oauth.TokenResponse, err error) {
	if req == nil {
		return nil, oauth.ErrInvalidRequest("missing token request")
	}

	ctx, span := s.tracer.Start(ctx, "server.ExchangeCode")
	defer span.End()
	defer func() {
		finishSpan(span, err)
		s.metrics.RecordCodeExchange(ctx, req.ClientID, resultOf(err))
	}()

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", "")

	if req.GrantType != oauth.GrantTypeAuthorizationCode {
		return nil, oauth.ErrUnsupportedGrantType("grant_type must be authorization_code")
	}

	switch {
	case req.Code == "":
		return nil, oauth.ErrInvalidRequest("code is required")
	case req.RedirectURI == "":
		return nil, oauth.ErrInvalidRequest("redirect_uri is required")
	case req.CodeVerifier == "":
		return nil, oauth.ErrInvalidRequest("code_verifier is required")
	}

	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	// Consume first. Any failure below leaves the code deleted.
	authCode, err := s.store.ConsumeAuthCode(ctx, security.HashToken(req.Code))
	if err != nil {
		if errors.Is(err, storage.ErrAuthCodeNotFound) {
			// Already redeemed, swept or never issued. After deletion these
			// cannot be told apart, so treat it as a possible replay.
			s.metrics.RecordCodeReuseDetected(ctx)
			s.Logger.DebugContext(ctx, "Authorization code validation failed",
				"reason", "code_not_found",
				"client_id", req.ClientID,
				"code_prefix", tokenPrefix(req.Code))
			s.auditSecurityEvent(security.EventAuthorizationCodeReuseDetected, "", req.ClientID, map[string]any{
				"code_prefix": tokenPrefix(req.Code),
			})
			return nil, oauth.ErrInvalidGrant("invalid authorization code")
		}
		return nil, s.storageError(ctx, "consume_auth_code", err)
	}

	instrumentation.AddOAuthFlowAttributes(span, "", authCode.UserID, "")

	if s.clock.IsExpired(authCode.ExpiresAt) {
		s.Logger.DebugContext(ctx, "Authorization code validation failed",
			"reason", "code_expired",
			"client_id", req.ClientID,
			"expired_at", authCode.ExpiresAt)
		s.auditAuthFailure(authCode.UserID, req.ClientID, "authorization_code_expired")
		return nil, oauth.ErrInvalidGrant("authorization code expired")
	}

	if !security.ConstantTimeEqual(authCode.ClientID, client.ClientID) {
		s.Logger.DebugContext(ctx, "Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", client.ClientID)
		s.auditSecurityEvent(security.EventCrossClientCodeRedemption, authCode.UserID, client.ClientID, map[string]any{
			"issued_to": authCode.ClientID,
		})
		return nil, oauth.ErrInvalidGrant("invalid authorization code")
	}

	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.DebugContext(ctx, "Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"expected_uri", authCode.RedirectURI,
			"provided_uri", req.RedirectURI,
			"client_id", client.ClientID)
		s.auditSecurityEvent(security.EventInvalidRedirect, authCode.UserID, client.ClientID, map[string]any{
			"redirect_uri": req.RedirectURI,
		})
		return nil, oauth.ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if !security.VerifyCodeChallenge(req.CodeVerifier, authCode.CodeChallenge) {
		s.metrics.RecordPKCEValidationFailed(ctx, client.ClientID)
		s.auditSecurityEvent(security.EventPKCEValidationFailed, authCode.UserID, client.ClientID, nil)
		return nil, oauth.ErrInvalidGrant("code_verifier does not match code_challenge")
	}

	resp, err := s.issueTokenPair(ctx, client, authCode.UserID, authCode.Scopes)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(authCode.UserID, client.ClientID, client.AppID, resp.Scope)
	}

	return resp, nil
}

// authenticateClient resolves clientID and, for confidential clients,
// verifies the secret. Every failure is invalid_client.
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	if clientID == "" {
		return nil, oauth.ErrInvalidClient("client_id is required")
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			// Spend the same time as a secret check on a known client.
			security.VerifyClientSecret(clientSecret, "")
			s.metrics.RecordClientAuthFailed(ctx, clientID)
			s.auditAuthFailure("", clientID, "unknown_client")
			return nil, oauth.ErrInvalidClient("client authentication failed")
		}
		return nil, s.storageError(ctx, "get_client", err)
	}

	if client.IsConfidential() {
		if clientSecret == "" || !security.VerifyClientSecret(clientSecret, client.ClientSecretHash) {
			s.metrics.RecordClientAuthFailed(ctx, clientID)
			s.auditAuthFailure("", clientID, "invalid_client_secret")
			return nil, oauth.ErrInvalidClient("client authentication failed")
		}
	}

	return client, nil
}

// issueTokenPair mints and stores a new access and refresh token and
// records the user's authorization of the client's app.
func (s *Server) issueTokenPair(ctx context.Context, client *storage.Client, userID string, scopes []string) (*oauth.TokenResponse, error) {
	now := s.clock.Now()

	accessToken := security.GenerateToken(security.PrefixAccessToken)
	refreshToken := security.GenerateToken(security.PrefixRefreshToken)

	at := &storage.AccessToken{
		ID:        security.HashToken(accessToken),
		AppID:     client.AppID,
		UserID:    userID,
		Scopes:    slices.Clone(scopes),
		ExpiresAt: s.clock.CalculateExpiry(s.Config.AccessTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.SaveAccessToken(ctx, at); err != nil {
		return nil, s.storageError(ctx, "save_access_token", err)
	}

	rt := &storage.RefreshToken{
		ID:            security.HashToken(refreshToken),
		AppID:         client.AppID,
		UserID:        userID,
		Scopes:        slices.Clone(scopes),
		AccessTokenID: at.ID,
		ExpiresAt:     s.clock.CalculateExpiry(s.Config.RefreshTokenTTL),
		CreatedAt:     now,
	}
	if err := s.store.SaveRefreshToken(ctx, rt); err != nil {
		s.discardAccessToken(ctx, at.ID)
		return nil, s.storageError(ctx, "save_refresh_token", err)
	}

	auth := &storage.UserAuthorization{
		ID:        util.NewID(now),
		UserID:    userID,
		AppID:     client.AppID,
		AppName:   client.AppName,
		Scopes:    slices.Clone(scopes),
		GrantedAt: now,
	}
	if err := s.store.SaveUserAuthorization(ctx, auth); err != nil {
		s.discardAccessToken(ctx, at.ID)
		if delErr := s.store.DeleteRefreshToken(ctx, rt.ID); delErr != nil && !storage.IsNotFound(delErr) {
			s.Logger.WarnContext(ctx, "Failed to discard refresh token", "error", delErr)
		}
		return nil, s.storageError(ctx, "save_user_authorization", err)
	}

	s.Logger.DebugContext(ctx, "Issued token pair",
		"client_id", client.ClientID,
		"app_id", client.AppID,
		"access_token_prefix", tokenPrefix(accessToken))

	return &oauth.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    oauth.TokenTypeBearer,
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refreshToken,
		Scope:        scope.Format(scopes),
	}, nil
}

// discardAccessToken removes a token minted by a request that failed
// before it could be returned.
func (s *Server) discardAccessToken(ctx context.Context, id string) {
	if err := s.store.DeleteAccessToken(ctx, id); err != nil && !storage.IsNotFound(err) {
		s.Logger.WarnContext(ctx, "Failed to discard access token", "error", err)
	}
}
