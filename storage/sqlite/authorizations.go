package sqlite

import (
	"context"
	"fmt"

	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// GetUserAuthorizations lists a user's grants, oldest first
func (s *Store) GetUserAuthorizations(ctx context.Context, userID string) (auths []*storage.UserAuthorization, err error) {
	ctx, done := s.obs.Start(ctx, "get_user_authorizations")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, app_id, app_name, scopes, granted_at
		FROM user_authorizations
		WHERE user_id = ?
		ORDER BY granted_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	auths = []*storage.UserAuthorization{}
	for rows.Next() {
		var (
			a         storage.UserAuthorization
			scopes    string
			grantedAt int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.AppID, &a.AppName, &scopes, &grantedAt); err != nil {
			return nil, err
		}
		a.Scopes = splitScopes(scopes)
		a.GrantedAt = fromMillis(grantedAt)
		auths = append(auths, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return auths, nil
}

// SaveUserAuthorization upserts the grant for (UserID, AppID), keeping the
// existing record's ID
func (s *Store) SaveUserAuthorization(ctx context.Context, auth *storage.UserAuthorization) (err error) {
	ctx, done := s.obs.Start(ctx, "save_user_authorization")
	defer func() { done(err) }()

	if auth == nil || auth.UserID == "" || auth.AppID == "" {
		return fmt.Errorf("user ID and app ID are required")
	}
	id := auth.ID
	if id == "" {
		id = util.NewID(auth.GrantedAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_authorizations (id, user_id, app_id, app_name, scopes, granted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, app_id) DO UPDATE SET
			app_name   = excluded.app_name,
			scopes     = excluded.scopes,
			granted_at = excluded.granted_at`,
		id,
		auth.UserID,
		auth.AppID,
		auth.AppName,
		joinScopes(auth.Scopes),
		toMillis(auth.GrantedAt),
	)
	return err
}

// DeleteUserAuthorization removes the grant for (userID, appID)
func (s *Store) DeleteUserAuthorization(ctx context.Context, userID, appID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_user_authorization")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx,
		`DELETE FROM user_authorizations WHERE user_id = ? AND app_id = ?`, userID, appID)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAuthorizationNotFound)
}
