package storage

import (
	"context"
	"time"
)

// ClientStore reads registered clients.
type ClientStore interface {
	// GetClient returns ErrClientNotFound when clientID is unknown.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// ClientRegistry manages clients on behalf of operators.
type ClientRegistry interface {
	ClientStore

	// SaveClient creates or replaces a client.
	SaveClient(ctx context.Context, client *Client) error

	// DeleteClient returns ErrClientNotFound when clientID is unknown.
	DeleteClient(ctx context.Context, clientID string) error
}

// AuthCodeStore persists authorization codes keyed by code hash.
type AuthCodeStore interface {
	// SaveAuthCode returns ErrAlreadyExists if the hash is already stored.
	SaveAuthCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthCode returns ErrAuthCodeNotFound when the hash is unknown.
	GetAuthCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// DeleteAuthCode returns ErrAuthCodeNotFound when the hash is unknown.
	DeleteAuthCode(ctx context.Context, codeHash string) error

	// ConsumeAuthCode atomically fetches and deletes a code. Of any number
	// of concurrent calls for one hash, exactly one receives the code; the
	// rest receive ErrAuthCodeNotFound.
	ConsumeAuthCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)
}

// AccessTokenStore persists access tokens keyed by token hash.
type AccessTokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns ErrAccessTokenNotFound when id is unknown.
	GetAccessToken(ctx context.Context, id string) (*AccessToken, error)

	// DeleteAccessToken returns ErrAccessTokenNotFound when id is unknown.
	DeleteAccessToken(ctx context.Context, id string) error

	// DeleteAccessTokensByUser removes every access token of userID for
	// appID and returns how many were removed.
	DeleteAccessTokensByUser(ctx context.Context, userID, appID string) (int, error)
}

// RefreshTokenStore persists refresh tokens keyed by token hash.
type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken returns ErrRefreshTokenNotFound when id is unknown.
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)

	// DeleteRefreshToken returns ErrRefreshTokenNotFound when id is unknown.
	DeleteRefreshToken(ctx context.Context, id string) error

	// UpdateRefreshTokenUsage repoints the token at accessTokenID and records
	// lastUsedAt. Returns ErrRefreshTokenNotFound when id is unknown.
	UpdateRefreshTokenUsage(ctx context.Context, id, accessTokenID string, lastUsedAt time.Time) error

	// DeleteRefreshTokensByUser removes every refresh token of userID for
	// appID and returns how many were removed.
	DeleteRefreshTokensByUser(ctx context.Context, userID, appID string) (int, error)
}

// AuthorizationStore persists the ledger of user grants.
type AuthorizationStore interface {
	// GetUserAuthorizations lists the grants of userID, oldest first. A user
	// without grants yields an empty slice and no error.
	GetUserAuthorizations(ctx context.Context, userID string) ([]*UserAuthorization, error)

	// SaveUserAuthorization inserts the record or, when a record for
	// (UserID, AppID) exists, replaces its scopes, app name and grant time
	// while keeping its ID.
	SaveUserAuthorization(ctx context.Context, auth *UserAuthorization) error

	// DeleteUserAuthorization returns ErrAuthorizationNotFound when there is
	// no record for (userID, appID).
	DeleteUserAuthorization(ctx context.Context, userID, appID string) error
}

// Sweeper removes rows whose expiry is before now. Lazy expiry in the core
// does not depend on it.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error)
}

// Store is the full storage dependency of the server.
type Store interface {
	ClientStore
	AuthCodeStore
	AccessTokenStore
	RefreshTokenStore
	AuthorizationStore
}
