package security

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// dummySecretHash is compared against when there is no stored hash so that
// an absent secret costs the same as a wrong one.
var dummySecretHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// GenerateClientSecret returns a new plaintext client secret.
func GenerateClientSecret() string {
	return GenerateToken(PrefixClientSecret)
}

// HashClientSecret hashes secret with bcrypt for storage.
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("client secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// VerifyClientSecret checks secret against a stored hash. bcrypt hashes are
// verified with bcrypt; anything else is treated as a hex SHA-256 digest and
// compared in constant time.
func VerifyClientSecret(secret, storedHash string) bool {
	if storedHash == "" || secret == "" {
		_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(secret))
		return false
	}
	if strings.HasPrefix(storedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
	}
	return VerifyTokenHash(secret, storedHash)
}
