package security

import (
	"strings"
	"testing"
)

func TestClientSecret(t *testing.T) {
	secret := GenerateClientSecret()
	if !strings.HasPrefix(secret, PrefixClientSecret+"_") {
		t.Fatalf("GenerateClientSecret() = %q, missing prefix", secret)
	}

	hash, err := HashClientSecret(secret)
	if err != nil {
		t.Fatalf("HashClientSecret() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("HashClientSecret() = %q, want a bcrypt hash", hash)
	}
	if strings.Contains(hash, secret) {
		t.Error("hash contains the plaintext secret")
	}

	tests := []struct {
		name   string
		secret string
		hash   string
		want   bool
	}{
		{"bcrypt match", secret, hash, true},
		{"bcrypt mismatch", "wrong", hash, false},
		{"sha256 match", "legacy-secret", HashToken("legacy-secret"), true},
		{"sha256 mismatch", "other", HashToken("legacy-secret"), false},
		{"empty secret", "", hash, false},
		{"no stored hash", secret, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyClientSecret(tt.secret, tt.hash); got != tt.want {
				t.Errorf("VerifyClientSecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashClientSecret_Empty(t *testing.T) {
	if _, err := HashClientSecret(""); err == nil {
		t.Error("HashClientSecret(\"\") should fail")
	}
}
