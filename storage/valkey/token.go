package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sparcrpg/sparc-oauth/storage"
)

// accessTokenJSON is the JSON representation of an access token
type accessTokenJSON struct {
	ID        string `json:"id"`
	AppID     string `json:"app_id"`
	UserID    string `json:"user_id"`
	Scopes    string `json:"scopes"`
	ExpiresAt int64  `json:"expires_at"`
	CreatedAt int64  `json:"created_at"`
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	return &storage.AccessToken{
		ID:        j.ID,
		AppID:     j.AppID,
		UserID:    j.UserID,
		Scopes:    splitScopes(j.Scopes),
		ExpiresAt: fromMillis(j.ExpiresAt),
		CreatedAt: fromMillis(j.CreatedAt),
	}
}

// refreshTokenJSON is the JSON representation of a refresh token. The field
// names are shared with luaUpdateRefreshTokenUsage.
type refreshTokenJSON struct {
	ID            string `json:"id"`
	AppID         string `json:"app_id"`
	UserID        string `json:"user_id"`
	Scopes        string `json:"scopes"`
	AccessTokenID string `json:"access_token_id"`
	ExpiresAt     int64  `json:"expires_at"`
	CreatedAt     int64  `json:"created_at"`
	LastUsedAt    int64  `json:"last_used_at"`
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	return &storage.RefreshToken{
		ID:            j.ID,
		AppID:         j.AppID,
		UserID:        j.UserID,
		Scopes:        splitScopes(j.Scopes),
		AccessTokenID: j.AccessTokenID,
		ExpiresAt:     fromMillis(j.ExpiresAt),
		CreatedAt:     fromMillis(j.CreatedAt),
		LastUsedAt:    fromMillis(j.LastUsedAt),
	}
}

// saveToken stores a token with its user set and expiry index entries.
func (s *Store) saveToken(ctx context.Context, kind, hash, userID, appID string, expiresAt time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return s.client.Do(ctx,
		s.client.B().Eval().Script(luaSaveToken).
			Numkeys(3).
			Key(s.entryKey(kind, hash), s.userTokensKey(kind, userID, appID), s.expiryKey(kind)).
			Arg(string(data),
				msString(s.keyTTL(expiresAt)),
				strconv.FormatInt(toMillis(expiresAt), 10),
				hash).
			Build(),
	).Error()
}

func (s *Store) deleteToken(ctx context.Context, kind, hash string, notFoundErr error) error {
	if err := s.deleteKey(ctx, s.entryKey(kind, hash), notFoundErr); err != nil {
		return err
	}
	// The user set entry is left behind; deleting by user skips missing keys.
	if err := s.client.Do(ctx, s.client.B().Zrem().Key(s.expiryKey(kind)).Member(hash).Build()).Error(); err != nil {
		s.logger.Warn("Failed to remove token from expiry index",
			"token_prefix", logHash(hash),
			"error", err)
	}
	return nil
}

func (s *Store) deleteTokensByUser(ctx context.Context, kind, userID, appID string) (int, error) {
	n, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaDeleteTokensByUser).
			Numkeys(2).
			Key(s.userTokensKey(kind, userID, appID), s.expiryKey(kind)).
			Arg(s.entryPrefix(kind)).
			Build(),
	).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens by user: %w", err)
	}
	return int(n), nil
}

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// SaveAccessToken stores an access token keyed by its hash
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, done := s.obs.Start(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid access token")
	}
	j := &accessTokenJSON{
		ID:        token.ID,
		AppID:     token.AppID,
		UserID:    token.UserID,
		Scopes:    joinScopes(token.Scopes),
		ExpiresAt: toMillis(token.ExpiresAt),
		CreatedAt: toMillis(token.CreatedAt),
	}
	if err := s.saveToken(ctx, kindAccessToken, token.ID, token.UserID, token.AppID, token.ExpiresAt, j); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken retrieves an access token by hash
func (s *Store) GetAccessToken(ctx context.Context, id string) (token *storage.AccessToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	return getAndUnmarshal(ctx, s, s.entryKey(kindAccessToken, id), storage.ErrAccessTokenNotFound, fromAccessTokenJSON)
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	return s.deleteToken(ctx, kindAccessToken, id, storage.ErrAccessTokenNotFound)
}

// DeleteAccessTokensByUser removes every access token of a user for an app
func (s *Store) DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteTokensByUser(ctx, kindAccessToken, userID, appID)
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token keyed by its hash
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, done := s.obs.Start(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid refresh token")
	}
	j := &refreshTokenJSON{
		ID:            token.ID,
		AppID:         token.AppID,
		UserID:        token.UserID,
		Scopes:        joinScopes(token.Scopes),
		AccessTokenID: token.AccessTokenID,
		ExpiresAt:     toMillis(token.ExpiresAt),
		CreatedAt:     toMillis(token.CreatedAt),
		LastUsedAt:    toMillis(token.LastUsedAt),
	}
	if err := s.saveToken(ctx, kindRefreshToken, token.ID, token.UserID, token.AppID, token.ExpiresAt, j); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by hash
func (s *Store) GetRefreshToken(ctx context.Context, id string) (token *storage.RefreshToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	return getAndUnmarshal(ctx, s, s.entryKey(kindRefreshToken, id), storage.ErrRefreshTokenNotFound, fromRefreshTokenJSON)
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	return s.deleteToken(ctx, kindRefreshToken, id, storage.ErrRefreshTokenNotFound)
}

// UpdateRefreshTokenUsage repoints a refresh token at a new access token
func (s *Store) UpdateRefreshTokenUsage(ctx context.Context, id, accessTokenID string, lastUsedAt time.Time) (err error) {
	ctx, done := s.obs.Start(ctx, "update_refresh_token_usage")
	defer func() { done(err) }()

	updated, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaUpdateRefreshTokenUsage).
			Numkeys(1).
			Key(s.entryKey(kindRefreshToken, id)).
			Arg(accessTokenID, strconv.FormatInt(toMillis(lastUsedAt), 10)).
			Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	if updated == 0 {
		return storage.ErrRefreshTokenNotFound
	}
	return nil
}

// DeleteRefreshTokensByUser removes every refresh token of a user for an app
func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteTokensByUser(ctx, kindRefreshToken, userID, appID)
}
