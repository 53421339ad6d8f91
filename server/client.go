package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/sparcrpg/sparc-oauth/scope"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// ErrRegistryUnsupported is returned by RegisterClient when the store cannot
// save clients.
var ErrRegistryUnsupported = errors.New("store does not support client registration")

// ClientRegistration describes a client to register.
type ClientRegistration struct {
	AppID         string
	AppName       string
	ClientType    storage.ClientType // default: confidential
	RedirectURIs  []string
	AllowedScopes []string
}

// RegisterClient creates a client with a generated client_id. Confidential
// clients also get a secret; only its bcrypt hash is stored and the
// plaintext is returned once. Public clients get an empty secret.
func (s *Server) RegisterClient(ctx context.Context, reg ClientRegistration) (*storage.Client, string, error) {
	registry, ok := s.store.(storage.ClientRegistry)
	if !ok {
		return nil, "", ErrRegistryUnsupported
	}

	if reg.ClientType == "" {
		reg.ClientType = storage.ClientTypeConfidential
	}
	if !reg.ClientType.Valid() {
		return nil, "", fmt.Errorf("invalid client type %q", reg.ClientType)
	}
	if reg.AppID == "" {
		return nil, "", fmt.Errorf("app id is required")
	}
	if len(reg.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}
	for _, uri := range reg.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, "", err
		}
	}
	if unknown := scope.Unknown(reg.AllowedScopes); len(unknown) > 0 {
		return nil, "", fmt.Errorf("unknown scopes: %s", scope.Format(unknown))
	}

	var clientSecret, clientSecretHash string
	if reg.ClientType == storage.ClientTypeConfidential {
		clientSecret = security.GenerateClientSecret()
		hash, err := security.HashClientSecret(clientSecret)
		if err != nil {
			return nil, "", err
		}
		clientSecretHash = hash
	}

	client := &storage.Client{
		ClientID:         security.GenerateToken(""),
		ClientSecretHash: clientSecretHash,
		AppID:            reg.AppID,
		AppName:          reg.AppName,
		RedirectURIs:     slices.Clone(reg.RedirectURIs),
		AllowedScopes:    slices.Clone(reg.AllowedScopes),
		ClientType:       reg.ClientType,
		CreatedAt:        s.clock.Now(),
	}

	if err := registry.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to save client: %w", err)
	}

	s.metrics.RecordClientRegistration(ctx, string(client.ClientType))
	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, client.AppID, string(client.ClientType))
	}
	s.Logger.InfoContext(ctx, "Registered client",
		"client_id", client.ClientID,
		"app_id", client.AppID,
		"client_type", client.ClientType)

	return client, clientSecret, nil
}

// validateRedirectURI requires an absolute URI without a fragment
// (RFC 6749 Section 3.1.2).
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", raw, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("redirect URI %q must be absolute", raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return fmt.Errorf("redirect URI %q has no host", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", raw)
	}
	return nil
}
