package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sparcrpg/sparc-oauth/storage"
)

// authorizationCodeJSON is the JSON representation of an authorization code
type authorizationCodeJSON struct {
	CodeHash      string `json:"code_hash"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
	RedirectURI   string `json:"redirect_uri"`
	Scopes        string `json:"scopes"`
	CodeChallenge string `json:"code_challenge"`
	ExpiresAt     int64  `json:"expires_at"`
	CreatedAt     int64  `json:"created_at"`
}

func toAuthorizationCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		CodeHash:      c.CodeHash,
		ClientID:      c.ClientID,
		UserID:        c.UserID,
		RedirectURI:   c.RedirectURI,
		Scopes:        joinScopes(c.Scopes),
		CodeChallenge: c.CodeChallenge,
		ExpiresAt:     toMillis(c.ExpiresAt),
		CreatedAt:     toMillis(c.CreatedAt),
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		CodeHash:      j.CodeHash,
		ClientID:      j.ClientID,
		UserID:        j.UserID,
		RedirectURI:   j.RedirectURI,
		Scopes:        splitScopes(j.Scopes),
		CodeChallenge: j.CodeChallenge,
		ExpiresAt:     fromMillis(j.ExpiresAt),
		CreatedAt:     fromMillis(j.CreatedAt),
	}
}

// ============================================================
// AuthCodeStore Implementation
// ============================================================

// SaveAuthCode stores a new authorization code
func (s *Store) SaveAuthCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, done := s.obs.Start(ctx, "save_auth_code")
	defer func() { done(err) }()

	if code == nil || code.CodeHash == "" {
		return fmt.Errorf("invalid authorization code")
	}

	data, err := json.Marshal(toAuthorizationCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	stored, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaSaveAuthCode).
			Numkeys(2).
			Key(s.entryKey(kindCode, code.CodeHash), s.expiryKey(kindCode)).
			Arg(string(data),
				msString(s.keyTTL(code.ExpiresAt)),
				strconv.FormatInt(toMillis(code.ExpiresAt), 10),
				code.CodeHash).
			Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	if stored == 0 {
		return storage.ErrAlreadyExists
	}

	s.logger.Debug("Saved authorization code", "code_prefix", logHash(code.CodeHash))
	return nil
}

// GetAuthCode retrieves a code by hash without consuming it
func (s *Store) GetAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	ctx, done := s.obs.Start(ctx, "get_auth_code")
	defer func() { done(err) }()

	return getAndUnmarshal(ctx, s, s.entryKey(kindCode, codeHash), storage.ErrAuthCodeNotFound, fromAuthorizationCodeJSON)
}

// DeleteAuthCode removes an authorization code
func (s *Store) DeleteAuthCode(ctx context.Context, codeHash string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_auth_code")
	defer func() { done(err) }()

	if err := s.deleteKey(ctx, s.entryKey(kindCode, codeHash), storage.ErrAuthCodeNotFound); err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Zrem().Key(s.expiryKey(kindCode)).Member(codeHash).Build()).Error(); err != nil {
		s.logger.Warn("Failed to remove code from expiry index",
			"code_prefix", logHash(codeHash),
			"error", err)
	}
	return nil
}

// ConsumeAuthCode atomically retrieves and deletes an authorization code.
// Only one concurrent caller receives the code.
func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	ctx, done := s.obs.Start(ctx, "consume_auth_code")
	defer func() { done(err) }()

	data, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaConsumeAuthCode).
			Numkeys(2).
			Key(s.entryKey(kindCode, codeHash), s.expiryKey(kindCode)).
			Arg(codeHash).
			Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrAuthCodeNotFound
		}
		return nil, fmt.Errorf("failed to execute atomic code consume: %w", err)
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to parse authorization code: %w", err)
	}

	s.logger.Debug("Consumed authorization code", "code_prefix", logHash(codeHash))
	return fromAuthorizationCodeJSON(&j), nil
}
