package sqlite

import (
	"context"
	"fmt"

	"github.com/sparcrpg/sparc-oauth/storage"
)

const clientColumns = `client_id, client_secret_hash, app_id, app_name, redirect_uris, allowed_scopes, client_type, created_at`

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, done := s.obs.Start(ctx, "get_client")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)

	var (
		c            storage.Client
		redirectURIs string
		scopes       string
		clientType   string
		createdAt    int64
	)
	if err := row.Scan(&c.ClientID, &c.ClientSecretHash, &c.AppID, &c.AppName, &redirectURIs, &scopes, &clientType, &createdAt); err != nil {
		return nil, mapNotFound(err, storage.ErrClientNotFound)
	}
	if c.RedirectURIs, err = decodeStrings(redirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect URIs of client %s: %w", clientID, err)
	}
	c.AllowedScopes = splitScopes(scopes)
	c.ClientType = storage.ClientType(clientType)
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.obs.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	redirectURIs, err := encodeStrings(client.RedirectURIs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			client_secret_hash = excluded.client_secret_hash,
			app_id             = excluded.app_id,
			app_name           = excluded.app_name,
			redirect_uris      = excluded.redirect_uris,
			allowed_scopes     = excluded.allowed_scopes,
			client_type        = excluded.client_type`,
		client.ClientID,
		client.ClientSecretHash,
		client.AppID,
		client.AppName,
		redirectURIs,
		joinScopes(client.AllowedScopes),
		string(client.ClientType),
		toMillis(client.CreatedAt),
	)
	return err
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_client")
	defer func() { done(err) }()

	r, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID)
	if err != nil {
		return err
	}
	return requireAffected(r, storage.ErrClientNotFound)
}
