package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/oauth2"
)

// Token prefixes identify the kind of a credential to operators. They carry
// no structure an attacker could use to forge a token.
const (
	PrefixAuthorizationCode = "sparc_code"
	PrefixAccessToken       = "sparc_at"
	PrefixRefreshToken      = "sparc_rt"
	PrefixClientSecret      = "sparc_cs"
)

// GenerateToken returns 32 bytes of CSPRNG output, base64url encoded without
// padding. A non-empty prefix is prepended as "<prefix>_".
func GenerateToken(prefix string) string {
	// GenerateVerifier reads 32 random bytes and encodes them RawURL.
	material := oauth2.GenerateVerifier()
	if prefix == "" {
		return material
	}
	return prefix + "_" + material
}

// TokenPrefix returns the known prefix of token, or "" when it carries none.
func TokenPrefix(token string) string {
	for _, p := range []string{PrefixAuthorizationCode, PrefixAccessToken, PrefixRefreshToken, PrefixClientSecret} {
		if strings.HasPrefix(token, p+"_") {
			return p
		}
	}
	return ""
}

// HashToken returns the lowercase hex SHA-256 digest of token. The digest is
// both the storage key and the verification target.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenHash reports whether HashToken(token) equals hash, in constant
// time.
func VerifyTokenHash(token, hash string) bool {
	return ConstantTimeEqual(HashToken(token), hash)
}

// ConstantTimeEqual compares a and b without leaking the position of the
// first difference. Secrets must never be compared with ==.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
