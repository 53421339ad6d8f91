package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// userAuthorizationJSON is the JSON representation of a user authorization.
// The field names are shared with luaSaveAuthorization.
type userAuthorizationJSON struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	AppID     string `json:"app_id"`
	AppName   string `json:"app_name"`
	Scopes    string `json:"scopes"`
	GrantedAt int64  `json:"granted_at"`
}

func fromUserAuthorizationJSON(j *userAuthorizationJSON) *storage.UserAuthorization {
	return &storage.UserAuthorization{
		ID:        j.ID,
		UserID:    j.UserID,
		AppID:     j.AppID,
		AppName:   j.AppName,
		Scopes:    splitScopes(j.Scopes),
		GrantedAt: fromMillis(j.GrantedAt),
	}
}

// ============================================================
// AuthorizationStore Implementation
// ============================================================

// GetUserAuthorizations lists a user's grants, oldest first
func (s *Store) GetUserAuthorizations(ctx context.Context, userID string) (auths []*storage.UserAuthorization, err error) {
	ctx, done := s.obs.Start(ctx, "get_user_authorizations")
	defer func() { done(err) }()

	entries, err := s.client.Do(ctx, s.client.B().Hgetall().Key(s.authorizationsKey(userID)).Build()).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to get user authorizations: %w", err)
	}

	auths = make([]*storage.UserAuthorization, 0, len(entries))
	for appID, data := range entries {
		var j userAuthorizationJSON
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			s.logger.Warn("Failed to unmarshal user authorization, skipping",
				"app_id", appID,
				"error", err)
			continue
		}
		auths = append(auths, fromUserAuthorizationJSON(&j))
	}

	sort.Slice(auths, func(i, k int) bool {
		if auths[i].GrantedAt.Equal(auths[k].GrantedAt) {
			return auths[i].ID < auths[k].ID
		}
		return auths[i].GrantedAt.Before(auths[k].GrantedAt)
	})
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

	data, err := json.Marshal(&userAuthorizationJSON{
		ID:        id,
		UserID:    auth.UserID,
		AppID:     auth.AppID,
		AppName:   auth.AppName,
		Scopes:    joinScopes(auth.Scopes),
		GrantedAt: toMillis(auth.GrantedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user authorization: %w", err)
	}

	err = s.client.Do(ctx,
		s.client.B().Eval().Script(luaSaveAuthorization).
			Numkeys(1).
			Key(s.authorizationsKey(auth.UserID)).
			Arg(auth.AppID, string(data)).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save user authorization: %w", err)
	}
	return nil
}

// DeleteUserAuthorization removes the grant for (userID, appID)
func (s *Store) DeleteUserAuthorization(ctx context.Context, userID, appID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_user_authorization")
	defer func() { done(err) }()

	n, err := s.client.Do(ctx, s.client.B().Hdel().Key(s.authorizationsKey(userID)).Field(appID).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete user authorization: %w", err)
	}
	if n == 0 {
		return storage.ErrAuthorizationNotFound
	}
	return nil
}
