package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/storage"
	"github.com/sparcrpg/sparc-oauth/storage/internal/observe"
)

// Store is a PostgreSQL implementation of all storage interfaces.
type Store struct {
	db     *sql.DB
	dsn    string
	obs    *observe.Observer
	logger *slog.Logger
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.Sweeper        = (*Store)(nil)
)

// NewStore connects to the database at dsn and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &Store{
		db:     db,
		dsn:    dsn,
		obs:    observe.New("postgres"),
		logger: slog.Default(),
	}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// SetInstrumentation enables spans, operation metrics and row-count gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs.SetInstrumentation(inst)
	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		Clients:        s.counter("oauth_clients"),
		AuthCodes:      s.counter("oauth_auth_codes"),
		AccessTokens:   s.counter("oauth_access_tokens"),
		RefreshTokens:  s.counter("oauth_refresh_tokens"),
		Authorizations: s.counter("oauth_user_authorizations"),
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

func (s *Store) counter(table string) instrumentation.StorageSizeCallback {
	query := "SELECT COUNT(*) FROM " + table
	return func() int64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var n int64
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			s.logger.Debug("Row count failed", "table", table, "error", err)
			return 0
		}
		return n
	}
}

// ============================================================
// Clients
// ============================================================

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, done := s.obs.Start(ctx, "get_client")
	defer func() { done(err) }()

	var (
		c          storage.Client
		clientType string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT client_id, client_secret_hash, app_id, app_name, redirect_uris, allowed_scopes, client_type, created_at
		FROM oauth_clients WHERE client_id = $1`, clientID,
	).Scan(&c.ClientID, &c.ClientSecretHash, &c.AppID, &c.AppName,
		pq.Array(&c.RedirectURIs), pq.Array(&c.AllowedScopes), &clientType, &c.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, storage.ErrClientNotFound)
	}
	c.ClientType = storage.ClientType(clientType)
	return &c, nil
}

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.obs.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (client_id, client_secret_hash, app_id, app_name, redirect_uris, allowed_scopes, client_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_id) DO UPDATE SET
			client_secret_hash = EXCLUDED.client_secret_hash,
			app_id             = EXCLUDED.app_id,
			app_name           = EXCLUDED.app_name,
			redirect_uris      = EXCLUDED.redirect_uris,
			allowed_scopes     = EXCLUDED.allowed_scopes,
			client_type        = EXCLUDED.client_type`,
		client.ClientID,
		client.ClientSecretHash,
		client.AppID,
		client.AppName,
		stringArray(client.RedirectURIs),
		stringArray(client.AllowedScopes),
		string(client.ClientType),
		client.CreatedAt,
	)
	return err
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_client")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM oauth_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrClientNotFound)
}

// ============================================================
// Authorization codes
// ============================================================

const authCodeColumns = `code_hash, client_id, user_id, redirect_uri, scopes, code_challenge, expires_at, created_at`

func scanAuthCode(row *sql.Row) (*storage.AuthorizationCode, error) {
	var c storage.AuthorizationCode
	err := row.Scan(&c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI,
		pq.Array(&c.Scopes), &c.CodeChallenge, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
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
		INSERT INTO oauth_auth_codes (`+authCodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code_hash) DO NOTHING`,
		code.CodeHash,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		stringArray(code.Scopes),
		code.CodeChallenge,
		code.ExpiresAt,
		code.CreatedAt,
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
		`SELECT `+authCodeColumns+` FROM oauth_auth_codes WHERE code_hash = $1`, codeHash))
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAuthCodeNotFound)
	}
	return code, nil
}

// DeleteAuthCode removes a code
func (s *Store) DeleteAuthCode(ctx context.Context, codeHash string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_auth_code")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM oauth_auth_codes WHERE code_hash = $1`, codeHash)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAuthCodeNotFound)
}

// ConsumeAuthCode deletes a code and returns it in a single statement. Row
// locking makes concurrent consumers of one hash see either the row or
// nothing.
func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (code *storage.AuthorizationCode, err error) {
	ctx, done := s.obs.Start(ctx, "consume_auth_code")
	defer func() { done(err) }()

	code, err = scanAuthCode(s.db.QueryRowContext(ctx,
		`DELETE FROM oauth_auth_codes WHERE code_hash = $1 RETURNING `+authCodeColumns, codeHash))
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAuthCodeNotFound)
	}
	return code, nil
}

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
		INSERT INTO oauth_access_tokens (id, app_id, user_id, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			app_id     = EXCLUDED.app_id,
			user_id    = EXCLUDED.user_id,
			scopes     = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at`,
		token.ID, token.AppID, token.UserID, stringArray(token.Scopes), token.ExpiresAt, token.CreatedAt,
	)
	return err
}

// GetAccessToken retrieves an access token by hash
func (s *Store) GetAccessToken(ctx context.Context, id string) (token *storage.AccessToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	var t storage.AccessToken
	err = s.db.QueryRowContext(ctx, `
		SELECT id, app_id, user_id, scopes, expires_at, created_at
		FROM oauth_access_tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.AppID, &t.UserID, pq.Array(&t.Scopes), &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, storage.ErrAccessTokenNotFound)
	}
	return &t, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM oauth_access_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAccessTokenNotFound)
}

// DeleteAccessTokensByUser removes every access token of a user for an app
func (s *Store) DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_access_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteByUser(ctx, "oauth_access_tokens", userID, appID)
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
		INSERT INTO oauth_refresh_tokens (id, app_id, user_id, scopes, access_token_id, expires_at, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			app_id          = EXCLUDED.app_id,
			user_id         = EXCLUDED.user_id,
			scopes          = EXCLUDED.scopes,
			access_token_id = EXCLUDED.access_token_id,
			expires_at      = EXCLUDED.expires_at,
			last_used_at    = EXCLUDED.last_used_at`,
		token.ID, token.AppID, token.UserID, stringArray(token.Scopes), token.AccessTokenID,
		token.ExpiresAt, token.CreatedAt, nullTime(token.LastUsedAt),
	)
	return err
}

// GetRefreshToken retrieves a refresh token by hash
func (s *Store) GetRefreshToken(ctx context.Context, id string) (token *storage.RefreshToken, err error) {
	ctx, done := s.obs.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	var (
		t          storage.RefreshToken
		lastUsedAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, app_id, user_id, scopes, access_token_id, expires_at, created_at, last_used_at
		FROM oauth_refresh_tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.AppID, &t.UserID, pq.Array(&t.Scopes), &t.AccessTokenID, &t.ExpiresAt, &t.CreatedAt, &lastUsedAt)
	if err != nil {
		return nil, mapNotFound(err, storage.ErrRefreshTokenNotFound)
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = lastUsedAt.Time
	}
	return &t, nil
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM oauth_refresh_tokens WHERE id = $1`, id)
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
		`UPDATE oauth_refresh_tokens SET access_token_id = $1, last_used_at = $2 WHERE id = $3`,
		accessTokenID, nullTime(lastUsedAt), id)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrRefreshTokenNotFound)
}

// DeleteRefreshTokensByUser removes every refresh token of a user for an app
func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (n int, err error) {
	ctx, done := s.obs.Start(ctx, "delete_refresh_tokens_by_user")
	defer func() { done(err) }()

	return s.deleteByUser(ctx, "oauth_refresh_tokens", userID, appID)
}

func (s *Store) deleteByUser(ctx context.Context, table, userID, appID string) (int, error) {
	r, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = $1 AND app_id = $2", userID, appID)
	if err != nil {
		return 0, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ============================================================
// User authorizations
// ============================================================

// GetUserAuthorizations lists a user's grants, oldest first
func (s *Store) GetUserAuthorizations(ctx context.Context, userID string) (auths []*storage.UserAuthorization, err error) {
	ctx, done := s.obs.Start(ctx, "get_user_authorizations")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, app_id, app_name, scopes, granted_at
		FROM oauth_user_authorizations
		WHERE user_id = $1
		ORDER BY granted_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	auths = []*storage.UserAuthorization{}
	for rows.Next() {
		var a storage.UserAuthorization
		if err := rows.Scan(&a.ID, &a.UserID, &a.AppID, &a.AppName, pq.Array(&a.Scopes), &a.GrantedAt); err != nil {
			return nil, err
		}
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
		INSERT INTO oauth_user_authorizations (id, user_id, app_id, app_name, scopes, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT oauth_user_authorizations_user_app DO UPDATE SET
			app_name   = EXCLUDED.app_name,
			scopes     = EXCLUDED.scopes,
			granted_at = EXCLUDED.granted_at`,
		id, auth.UserID, auth.AppID, auth.AppName, stringArray(auth.Scopes), auth.GrantedAt,
	)
	return err
}

// DeleteUserAuthorization removes the grant for (userID, appID)
func (s *Store) DeleteUserAuthorization(ctx context.Context, userID, appID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_user_authorization")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_user_authorizations WHERE user_id = $1 AND app_id = $2`, userID, appID)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrAuthorizationNotFound)
}

// ============================================================
// Cleanup
// ============================================================

// DeleteExpired removes codes and tokens whose expiry is before now
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (res storage.SweepResult, err error) {
	ctx, done := s.obs.Start(ctx, "delete_expired")
	defer func() { done(err) }()

	counts := []*int{&res.AuthCodes, &res.AccessTokens, &res.RefreshTokens}
	for i, table := range []string{"oauth_auth_codes", "oauth_access_tokens", "oauth_refresh_tokens"} {
		r, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at < $1", now)
		if err != nil {
			return res, fmt.Errorf("sweeping %s: %w", table, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, err
		}
		*counts[i] = int(n)
	}
	return res, nil
}

// truncateAll empties every table. Tests only.
func (s *Store) truncateAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE oauth_clients, oauth_auth_codes, oauth_access_tokens, oauth_refresh_tokens, oauth_user_authorizations`)
	return err
}

func mapNotFound(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

func requireAffected(r sql.Result, notFound error) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// stringArray encodes v as a Postgres text array. nil is stored as '{}'
// to satisfy the NOT NULL columns.
func stringArray(v []string) any {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
