package security

// Event type constants for security audit logging.
const (
	// Authorization flow events

	// EventAuthorizationRequestValidated is logged when an authorization request passes validation
	EventAuthorizationRequestValidated = "authorization_request_validated"

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReuseDetected is logged when a consumed or unknown code is redeemed
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// Token lifecycle events

	// EventTokenIssued is logged when a code is exchanged for a token pair
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token mints a new access token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a single token is revoked
	EventTokenRevoked = "token_revoked"

	// EventTokenExpired is logged when an expired token or code is presented and removed
	EventTokenExpired = "token_expired"

	// EventAuthorizationRevoked is logged when a user revokes an application's grant
	EventAuthorizationRevoked = "authorization_revoked"

	// Client events

	// EventClientRegistered is logged when a client is registered by an operator
	EventClientRegistered = "client_registered"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventPKCEValidationFailed is logged when the code_verifier does not match the stored challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when a redirect URI does not match the registered set or the code binding
	EventInvalidRedirect = "invalid_redirect"

	// EventScopeEscalationAttempt is logged when a client requests scopes it is not allowed
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventCrossClientCodeRedemption is logged when a code issued to one client is redeemed by another
	EventCrossClientCodeRedemption = "cross_client_code_redemption"

	// EventCrossAppRefresh is logged when a client presents a refresh token belonging to another app
	EventCrossAppRefresh = "cross_app_refresh"
)
