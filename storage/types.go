package storage

import (
	"slices"
	"time"
)

// ClientType distinguishes clients that can hold a secret from those that
// cannot.
type ClientType string

const (
	ClientTypePublic       ClientType = "public"
	ClientTypeConfidential ClientType = "confidential"
)

// Valid reports whether t is a known client type.
func (t ClientType) Valid() bool {
	return t == ClientTypePublic || t == ClientTypeConfidential
}

// Client is a registered application.
type Client struct {
	ClientID string

	// ClientSecretHash is the bcrypt (or legacy SHA-256 hex) hash of the
	// secret. Set only for confidential clients.
	ClientSecretHash string

	AppID         string
	AppName       string
	RedirectURIs  []string
	AllowedScopes []string
	ClientType    ClientType
	CreatedAt     time.Time
}

// IsConfidential reports whether the client must authenticate with a secret.
func (c *Client) IsConfidential() bool {
	return c.ClientType == ClientTypeConfidential
}

// Clone returns a deep copy.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.AllowedScopes = slices.Clone(c.AllowedScopes)
	return &cp
}

// AuthorizationCode is a single-use grant. CodeHash is the storage key.
type AuthorizationCode struct {
	CodeHash      string
	ClientID      string
	UserID        string
	RedirectURI   string
	Scopes        []string
	CodeChallenge string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Clone returns a deep copy.
func (c *AuthorizationCode) Clone() *AuthorizationCode {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}

// AccessToken is an issued access token. ID is the token hash.
type AccessToken struct {
	ID        string
	AppID     string
	UserID    string
	Scopes    []string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Clone returns a deep copy.
func (t *AccessToken) Clone() *AccessToken {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp
}

// RefreshToken is an issued refresh token. ID is the token hash.
type RefreshToken struct {
	ID     string
	AppID  string
	UserID string
	Scopes []string

	// AccessTokenID points at the access token this refresh token currently
	// backs. It is replaced on every refresh and never used for ownership.
	AccessTokenID string

	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Clone returns a deep copy.
func (t *RefreshToken) Clone() *RefreshToken {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp
}

// UserAuthorization records that a user granted an app a set of scopes.
// There is at most one per (UserID, AppID).
type UserAuthorization struct {
	ID        string
	UserID    string
	AppID     string
	AppName   string
	Scopes    []string
	GrantedAt time.Time
}

// Clone returns a deep copy.
func (a *UserAuthorization) Clone() *UserAuthorization {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Scopes = slices.Clone(a.Scopes)
	return &cp
}

// SweepResult counts the rows removed by Sweeper.DeleteExpired.
type SweepResult struct {
	AuthCodes     int
	AccessTokens  int
	RefreshTokens int
}

// Total returns the number of rows removed.
func (r SweepResult) Total() int {
	return r.AuthCodes + r.AccessTokens + r.RefreshTokens
}
