package server

import (
	"context"
	"errors"

	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// Token validation outcomes recorded in metrics.
const (
	validationValid   = "valid"
	validationMissing = "missing"
	validationExpired = "expired"
)

// ValidateAccessToken resolves a bearer token presented to a resource
// server. It returns (nil, nil) when the token is unknown or expired; an
// expired token is deleted before returning. A non-nil error means storage
// failed and is always a server_error. A valid token causes no writes.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	ctx, span := s.tracer.Start(ctx, "server.ValidateAccessToken")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	if token == "" {
		s.metrics.RecordTokenValidation(ctx, validationMissing)
		return nil, nil
	}

	at, err := s.store.GetAccessToken(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrAccessTokenNotFound) {
			s.metrics.RecordTokenValidation(ctx, validationMissing)
			return nil, nil
		}
		return nil, s.storageError(ctx, "get_access_token", err)
	}

	if s.clock.IsExpired(at.ExpiresAt) {
		if err := s.store.DeleteAccessToken(ctx, at.ID); err != nil && !storage.IsNotFound(err) {
			return nil, s.storageError(ctx, "delete_access_token", err)
		}
		s.metrics.RecordTokenValidation(ctx, validationExpired)
		s.Logger.DebugContext(ctx, "Deleted expired access token",
			"app_id", at.AppID,
			"token_prefix", tokenPrefix(token))
		return nil, nil
	}

	s.metrics.RecordTokenValidation(ctx, validationValid)
	return at, nil
}
