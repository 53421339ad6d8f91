package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sparcrpg/sparc-oauth/storage"
)

// ============================================================
// Access tokens
// ============================================================

// SaveAccessToken stores an access token keyed by its hash
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, done := s.obs.Start(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("token ID is required")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (id, app_id, user_id, scopes, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			app_id     = excluded.app_id,
			user_id    = excluded.user_id,
			scopes     = excluded.scopes,
			expires_at = excluded.expires_at`,
		token.ID,
		token.AppID,
		token.UserID,
		joinScopes(token.Scopes),
		toMillis(token.ExpiresAt),
		toMillis(token.CreatedAt),
	)
	return err
}

// GetAccessToken retrieves an access token by hash
func (s *Store) GetAccessToken(ctx context.Context, id string) (token *storage.AccessToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	var (
		t         storage.AccessToken
		scopes    string
		expiresAt int64
		createdAt int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, app_id, user_id, scopes, expires_at, created_at
		FROM access_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.AppID, &t.UserID, &scopes, &expiresAt, &createdAt)
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAccessTokenNotFound)
	}
	t.Scopes = splitScopes(scopes)
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAccessTokenNotFound)
}

// DeleteAccessTokensByUser removes every access token of a user for an app
func (s *Store) DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteByUser(ctx, "access_tokens", userID, appID)
}

// ============================================================
// Refresh tokens
// ============================================================

// SaveRefreshToken stores a refresh token keyed by its hash
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, done := s.obs.Start(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.ID == "" {
		return fmt.Errorf("token ID is required")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, app_id, user_id, scopes, access_token_id, expires_at, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			app_id          = excluded.app_id,
			user_id         = excluded.user_id,
			scopes          = excluded.scopes,
			access_token_id = excluded.access_token_id,
			expires_at      = excluded.expires_at,
			last_used_at    = excluded.last_used_at`,
		token.ID,
		token.AppID,
		token.UserID,
		joinScopes(token.Scopes),
		token.AccessTokenID,
		toMillis(token.ExpiresAt),
		toMillis(token.CreatedAt),
		toNullMillis(token.LastUsedAt),
	)
	return err
}

// GetRefreshToken retrieves a refresh token by hash
func (s *Store) GetRefreshToken(ctx context.Context, id string) (token *storage.RefreshToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	var (
		t          storage.RefreshToken
		scopes     string
		expiresAt  int64
		createdAt  int64
		lastUsedAt sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, app_id, user_id, scopes, access_token_id, expires_at, created_at, last_used_at
		FROM refresh_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.AppID, &t.UserID, &scopes, &t.AccessTokenID, &expiresAt, &createdAt, &lastUsedAt)
	if err != nil {
		return nil, mapNotFound(err, storage.ErrRefreshTokenNotFound)
	}
	t.Scopes = splitScopes(scopes)
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	t.LastUsedAt = mapNullMillis(lastUsedAt)
	return &t, nil
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrRefreshTokenNotFound)
}

// UpdateRefreshTokenUsage repoints a refresh token at a new access token
func (s *Store) UpdateRefreshTokenUsage(ctx context.Context, id, accessTokenID string, lastUsedAt time.Time) (err error) {
	ctx, done := s.obs.Start(ctx, "update_refresh_token_usage")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET access_token_id = ?, last_used_at = ? WHERE id = ?`,
		accessTokenID, toNullMillis(lastUsedAt), id)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrRefreshTokenNotFound)
}

// DeleteRefreshTokensByUser removes every refresh token of a user for an app
func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteByUser(ctx, "refresh_tokens", userID, appID)
}

func (s *Store) deleteByUser(ctx context.Context, table, userID, appID string) (int, error) {
	r, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND app_id = ?", userID, appID)
	if err != nil {
		return 0, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
