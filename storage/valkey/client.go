package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sparcrpg/sparc-oauth/storage"
)

// clientJSON is the JSON representation of a client
type clientJSON struct {
	ClientID         string   `json:"client_id"`
	ClientSecretHash string   `json:"client_secret_hash,omitempty"`
	AppID            string   `json:"app_id"`
	AppName          string   `json:"app_name,omitempty"`
	RedirectURIs     []string `json:"redirect_uris"`
	AllowedScopes    []string `json:"allowed_scopes"`
	ClientType       string   `json:"client_type"`
	CreatedAt        int64    `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:         c.ClientID,
		ClientSecretHash: c.ClientSecretHash,
		AppID:            c.AppID,
		AppName:          c.AppName,
		RedirectURIs:     c.RedirectURIs,
		AllowedScopes:    c.AllowedScopes,
		ClientType:       string(c.ClientType),
		CreatedAt:        toMillis(c.CreatedAt),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ClientID:         j.ClientID,
		ClientSecretHash: j.ClientSecretHash,
		AppID:            j.AppID,
		AppName:          j.AppName,
		RedirectURIs:     j.RedirectURIs,
		AllowedScopes:    j.AllowedScopes,
		ClientType:       storage.ClientType(j.ClientType),
		CreatedAt:        fromMillis(j.CreatedAt),
	}
}

// ============================================================
// ClientStore / ClientRegistry Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.obs.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	key := s.clientKey(client.ClientID)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, done := s.obs.Start(ctx, "get_client")
	defer func() { done(err) }()

	return getAndUnmarshal(ctx, s, s.clientKey(clientID), storage.ErrClientNotFound, fromClientJSON)
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, done := s.obs.Start(ctx, "delete_client")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.clientKey(clientID), storage.ErrClientNotFound)
}

// getAndUnmarshal fetches a key, unmarshals the JSON and converts it to the
// target type.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// deleteKey deletes key, mapping a missing key to notFoundErr.
func (s *Store) deleteKey(ctx context.Context, key string, notFoundErr error) error {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
