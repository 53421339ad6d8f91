package security

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCE verifier length bounds (RFC 7636 §4.1).
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// GenerateCodeVerifier returns a PKCE code verifier carrying 32 bytes of
// CSPRNG entropy, base64url encoded without padding.
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateCodeChallenge derives the S256 challenge for verifier:
// BASE64URL(SHA256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyCodeChallenge reports whether verifier hashes to challenge. Malformed
// input of any kind yields false; a verification error is indistinguishable
// from a mismatch.
func VerifyCodeChallenge(verifier, challenge string) bool {
	if challenge == "" || !validVerifier(verifier) {
		return false
	}
	computed := GenerateCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// validVerifier checks length and the unreserved character set
// [A-Za-z0-9-._~].
func validVerifier(v string) bool {
	if len(v) < MinVerifierLength || len(v) > MaxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
