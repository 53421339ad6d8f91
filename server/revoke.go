package server

import (
	"context"
	"errors"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// Token kinds accepted by RevokeToken.
const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// RevokeToken revokes a single access or refresh token held by clientID
// (RFC 7009). Revoking a refresh token also deletes the access token it
// currently backs. Tokens that are unknown, already revoked or issued to a
// different app are ignored so the response never reveals whether a token
// exists.
func (s *Server) RevokeToken(ctx context.Context, token, clientID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "server.RevokeToken")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	instrumentation.AddOAuthFlowAttributes(span, clientID, "", "")

	if token == "" {
		return oauth.ErrInvalidRequest("token is required")
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.metrics.RecordClientAuthFailed(ctx, clientID)
			return oauth.ErrInvalidClient("client authentication failed")
		}
		return s.storageError(ctx, "get_client", err)
	}

	hash := security.HashToken(token)

	switch security.TokenPrefix(token) {
	case security.PrefixAccessToken:
		_, err = s.revokeAccessToken(ctx, client, hash)
	case security.PrefixRefreshToken:
		_, err = s.revokeRefreshToken(ctx, client, hash)
	default:
		var found bool
		found, err = s.revokeAccessToken(ctx, client, hash)
		if err == nil && !found {
			_, err = s.revokeRefreshToken(ctx, client, hash)
		}
	}
	return err
}

func (s *Server) revokeAccessToken(ctx context.Context, client *storage.Client, hash string) (bool, error) {
	at, err := s.store.GetAccessToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrAccessTokenNotFound) {
			return false, nil
		}
		return false, s.storageError(ctx, "get_access_token", err)
	}
	if !s.ownsToken(client, at.AppID, at.UserID) {
		return true, nil
	}

	if err := s.store.DeleteAccessToken(ctx, hash); err != nil && !storage.IsNotFound(err) {
		return true, s.storageError(ctx, "delete_access_token", err)
	}

	s.metrics.RecordTokenRevocation(ctx, tokenKindAccess, 1)
	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(at.UserID, client.ClientID, tokenKindAccess)
	}
	return true, nil
}

func (s *Server) revokeRefreshToken(ctx context.Context, client *storage.Client, hash string) (bool, error) {
	rt, err := s.store.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return false, nil
		}
		return false, s.storageError(ctx, "get_refresh_token", err)
	}
	if !s.ownsToken(client, rt.AppID, rt.UserID) {
		return true, nil
	}

	if err := s.store.DeleteRefreshToken(ctx, hash); err != nil && !storage.IsNotFound(err) {
		return true, s.storageError(ctx, "delete_refresh_token", err)
	}
	s.metrics.RecordTokenRevocation(ctx, tokenKindRefresh, 1)

	if rt.AccessTokenID != "" {
		err := s.store.DeleteAccessToken(ctx, rt.AccessTokenID)
		switch {
		case err == nil:
			s.metrics.RecordTokenRevocation(ctx, tokenKindAccess, 1)
		case !storage.IsNotFound(err):
			return true, s.storageError(ctx, "delete_access_token", err)
		}
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(rt.UserID, client.ClientID, tokenKindRefresh)
	}
	return true, nil
}

// ownsToken reports whether a token for appID belongs to client and audits
// attempts to revoke another app's token.
func (s *Server) ownsToken(client *storage.Client, appID, userID string) bool {
	if security.ConstantTimeEqual(client.AppID, appID) {
		return true
	}
	s.auditAuthFailure(userID, client.ClientID, "revoke_foreign_token")
	return false
}
