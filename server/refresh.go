package server

import (
	"context"
	"errors"
	"slices"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/scope"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// RefreshAccessToken mints a new access token from a refresh token. The
// access token the refresh token previously backed is deleted, so it stops
// validating immediately. The refresh token itself is kept and is not
// rotated; the response carries no refresh_token.
func (s *Server) RefreshAccessToken(ctx context.Context, req *oauth.RefreshRequest) (_ *oauth.TokenResponse, err error) {
	if req == nil {
		return nil, oauth.ErrInvalidRequest("missing refresh request")
	}

	ctx, span := s.tracer.Start(ctx, "server.RefreshAccessToken")
	defer span.End()
	defer func() {
		finishSpan(span, err)
		s.metrics.RecordTokenRefresh(ctx, req.ClientID, resultOf(err))
	}()

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", "")

	if req.GrantType != oauth.GrantTypeRefreshToken {
		return nil, oauth.ErrUnsupportedGrantType("grant_type must be refresh_token")
	}
	if req.RefreshToken == "" {
		return nil, oauth.ErrInvalidRequest("refresh_token is required")
	}

	rt, err := s.store.GetRefreshToken(ctx, security.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			s.Logger.DebugContext(ctx, "Refresh token validation failed",
				"reason", "token_not_found",
				"client_id", req.ClientID,
				"token_prefix", tokenPrefix(req.RefreshToken))
			s.auditAuthFailure("", req.ClientID, "invalid_refresh_token")
			return nil, oauth.ErrInvalidGrant("invalid refresh token")
		}
		return nil, s.storageError(ctx, "get_refresh_token", err)
	}

	instrumentation.AddOAuthFlowAttributes(span, "", rt.UserID, "")

	if s.clock.IsExpired(rt.ExpiresAt) {
		if err := s.store.DeleteRefreshToken(ctx, rt.ID); err != nil && !storage.IsNotFound(err) {
			return nil, s.storageError(ctx, "delete_refresh_token", err)
		}
		s.auditSecurityEvent(security.EventTokenExpired, rt.UserID, req.ClientID, map[string]any{
			"token_type": "refresh",
		})
		return nil, oauth.ErrInvalidGrant("refresh token expired")
	}

	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.metrics.RecordClientAuthFailed(ctx, req.ClientID)
			s.auditAuthFailure(rt.UserID, req.ClientID, "unknown_client")
			return nil, oauth.ErrInvalidClient("client authentication failed")
		}
		return nil, s.storageError(ctx, "get_client", err)
	}
	if !security.ConstantTimeEqual(client.AppID, rt.AppID) {
		s.metrics.RecordClientAuthFailed(ctx, client.ClientID)
		s.auditSecurityEvent(security.EventCrossAppRefresh, rt.UserID, client.ClientID, map[string]any{
			"client_app_id": client.AppID,
		})
		return nil, oauth.ErrInvalidClient("refresh token was not issued to this client")
	}

	if rt.AccessTokenID != "" {
		if err := s.store.DeleteAccessToken(ctx, rt.AccessTokenID); err != nil && !storage.IsNotFound(err) {
			return nil, s.storageError(ctx, "delete_access_token", err)
		}
	}

	now := s.clock.Now()
	accessToken := security.GenerateToken(security.PrefixAccessToken)
	at := &storage.AccessToken{
		ID:        security.HashToken(accessToken),
		AppID:     rt.AppID,
		UserID:    rt.UserID,
		Scopes:    slices.Clone(rt.Scopes),
		ExpiresAt: s.clock.CalculateExpiry(s.Config.AccessTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.SaveAccessToken(ctx, at); err != nil {
		return nil, s.storageError(ctx, "save_access_token", err)
	}

	if err := s.store.UpdateRefreshTokenUsage(ctx, rt.ID, at.ID, now); err != nil {
		s.discardAccessToken(ctx, at.ID)
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			// Revoked while this request was in flight.
			return nil, oauth.ErrInvalidGrant("invalid refresh token")
		}
		return nil, s.storageError(ctx, "update_refresh_token_usage", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(rt.UserID, client.ClientID, rt.AppID)
	}

	return &oauth.TokenResponse{
		AccessToken: accessToken,
		TokenType:   oauth.TokenTypeBearer,
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       scope.Format(rt.Scopes),
	}, nil
}
