package server

import (
	"context"
	"errors"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// RevokeAuthorization withdraws a user's grant to an app. It deletes the
// user's access tokens for the app, their refresh tokens unless
// Config.RetainRefreshTokensOnRevocation is set, and the authorization
// record. Tokens are deleted before the record so a failure part way leaves
// the grant listed and the call can be retried. Revoking an app that has no
// record is not an error.
func (s *Server) RevokeAuthorization(ctx context.Context, userID, appID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "server.RevokeAuthorization")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	if userID == "" || appID == "" {
		return oauth.ErrInvalidRequest("user and app are required")
	}
	instrumentation.AddOAuthFlowAttributes(span, "", userID, "")

	accessTokens, err := s.store.DeleteAccessTokensByUser(ctx, userID, appID)
	if err != nil {
		return s.storageError(ctx, "delete_access_tokens_by_user", err)
	}
	s.metrics.RecordTokenRevocation(ctx, "access", accessTokens)

	refreshTokens := 0
	if !s.Config.RetainRefreshTokensOnRevocation {
		refreshTokens, err = s.store.DeleteRefreshTokensByUser(ctx, userID, appID)
		if err != nil {
			return s.storageError(ctx, "delete_refresh_tokens_by_user", err)
		}
		s.metrics.RecordTokenRevocation(ctx, "refresh", refreshTokens)
	}

	if err := s.store.DeleteUserAuthorization(ctx, userID, appID); err != nil && !errors.Is(err, storage.ErrAuthorizationNotFound) {
		return s.storageError(ctx, "delete_user_authorization", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationRevoked(userID, appID, accessTokens, refreshTokens)
	}
	s.Logger.InfoContext(ctx, "Revoked authorization",
		"app_id", appID,
		"access_tokens_deleted", accessTokens,
		"refresh_tokens_deleted", refreshTokens)

	return nil
}

// GetUserAuthorizations lists the apps a user has authorized, oldest first.
// A user with no grants gets an empty slice.
func (s *Server) GetUserAuthorizations(ctx context.Context, userID string) ([]*storage.UserAuthorization, error) {
	auths, err := s.store.GetUserAuthorizations(ctx, userID)
	if err != nil {
		return nil, s.storageError(ctx, "get_user_authorizations", err)
	}
	return auths, nil
}
