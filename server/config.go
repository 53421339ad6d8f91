package server

import (
	"fmt"
	"log/slog"
)

// Default credential lifetimes in seconds.
const (
	DefaultAuthorizationCodeTTL = 600     // 10 minutes
	DefaultAccessTokenTTL       = 3600    // 1 hour
	DefaultRefreshTokenTTL      = 2592000 // 30 days
)

// Limits on configured lifetimes, in seconds.
const (
	maxAuthorizationCodeTTL = 600
	maxAccessTokenTTL       = 86400
)

// Config holds authorization server configuration. The zero value of every
// boolean is the secure choice.
type Config struct {
	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// AllowEmptyScope accepts authorization requests that ask for no scope.
	// Default: false (at least one scope is required)
	AllowEmptyScope bool

	// RetainRefreshTokensOnRevocation keeps a user's refresh tokens for an
	// app when the user revokes that app's authorization. The retained
	// tokens can still mint access tokens.
	// Default: false (revocation deletes refresh tokens as well)
	RetainRefreshTokensOnRevocation bool
}

// applySecureDefaults fills unset fields and logs insecure choices. The
// caller's Config is not modified.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config
	applyTimeDefaults(&cfg)
	logSecurityWarnings(&cfg, logger)
	return &cfg
}

func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.AuthorizationCodeTTL < 0 {
		return fmt.Errorf("AuthorizationCodeTTL must not be negative")
	}
	if c.AccessTokenTTL < 0 {
		return fmt.Errorf("AccessTokenTTL must not be negative")
	}
	if c.RefreshTokenTTL < 0 {
		return fmt.Errorf("RefreshTokenTTL must not be negative")
	}
	if c.RefreshTokenTTL != 0 && c.AccessTokenTTL > c.RefreshTokenTTL {
		return fmt.Errorf("AccessTokenTTL (%d) must not exceed RefreshTokenTTL (%d)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	return nil
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AuthorizationCodeTTL > maxAuthorizationCodeTTL {
		logger.Warn("SECURITY WARNING: Authorization code lifetime is long",
			"ttl_seconds", config.AuthorizationCodeTTL,
			"risk", "Longer window for intercepted codes",
			"recommendation", "RFC 6749 Section 4.1.2 recommends at most 10 minutes")
	}
	if config.AccessTokenTTL > maxAccessTokenTTL {
		logger.Warn("SECURITY WARNING: Access token lifetime exceeds one day",
			"ttl_seconds", config.AccessTokenTTL,
			"risk", "Stolen access tokens stay usable for longer")
	}
	if config.AllowEmptyScope {
		logger.Warn("SECURITY NOTICE: Authorization requests without scope are accepted",
			"recommendation", "Set AllowEmptyScope=false so every grant names its permissions")
	}
	if config.RetainRefreshTokensOnRevocation {
		logger.Warn("SECURITY WARNING: Refresh tokens survive authorization revocation",
			"risk", "A revoked application can keep minting access tokens",
			"recommendation", "Set RetainRefreshTokensOnRevocation=false")
	}
}
