package oauth

// Grant, response and token types understood by the core.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	ResponseTypeCode = "code"

	TokenTypeBearer = "Bearer"

	PKCEMethodS256 = "S256"
)

// MinStateLength is the minimum length of the state parameter. The request
// schema layer enforces it; the core does not re-validate.
const MinStateLength = 32

// ==================== Authorization Endpoint ====================

// AuthorizationRequest is a parsed authorization request (RFC 6749 §4.1.1)
// with mandatory PKCE (RFC 7636).
type AuthorizationRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// ==================== Token Endpoint ====================

// TokenRequest is an authorization_code grant request.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	CodeVerifier string `json:"code_verifier"`
}

// RefreshRequest is a refresh_token grant request.
type RefreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

// TokenResponse is the successful token endpoint response (RFC 6749 §5.1).
// The tokens are plaintext and are never recoverable after this response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}
