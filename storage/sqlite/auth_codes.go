package sqlite

import (
	"context"
	"fmt"

	"github.com/sparcrpg/sparc-oauth/storage"
)

const authCodeColumns = `code_hash, client_id, user_id, redirect_uri, scopes, code_challenge, expires_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthCode(row scanner) (*storage.AuthorizationCode, error) {
	var (
		c         storage.AuthorizationCode
		scopes    string
		expiresAt int64
		createdAt int64
	)
	if err := row.Scan(&c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI, &scopes, &c.CodeChallenge, &expiresAt, &createdAt); err != nil {
		return nil, err
	}
	c.Scopes = splitScopes(scopes)
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}

// SaveAuthCode stores a new authorization code
func (s *Store) SaveAuthCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, done := s.obs.Start(ctx, "save_auth_code")
	defer func() { done(err) }()

	if code == nil || code.CodeHash == "" {
		return fmt.Errorf("code hash is required")
	}

	r, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_codes (`+authCodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code_hash) DO NOTHING`,
		code.CodeHash,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		joinScopes(code.Scopes),
		code.CodeChallenge,
		toMillis(code.ExpiresAt),
		toMillis(code.CreatedAt),
	)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAlreadyExists)
}

// GetAuthCode retrieves a code by hash without consuming it
func (s *Store) GetAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	ctx, done := s.obs.Start(ctx, "get_auth_code")
	defer func() { done(err) }()

	code, err = scanAuthCode(s.db.QueryRowContext(ctx,
		`SELECT `+authCodeColumns+` FROM auth_codes WHERE code_hash = ?`, codeHash))
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAuthCodeNotFound)
	}
	return code, nil
}

// DeleteAuthCode removes a code
func (s *Store) DeleteAuthCode(ctx context.Context, codeHash string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_auth_code")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM auth_codes WHERE code_hash = ?`, codeHash)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAuthCodeNotFound)
}

// ConsumeAuthCode deletes a code and returns it in a single statement
func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	ctx, done := s.obs.Start(ctx, "consume_auth_code")
	defer func() { done(err) }()

	code, err = scanAuthCode(s.db.QueryRowContext(ctx,
		`DELETE FROM auth_codes WHERE code_hash = ? RETURNING `+authCodeColumns, codeHash))
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAuthCodeNotFound)
	}
	return code, nil
}
