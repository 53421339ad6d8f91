package security

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"authorization code", PrefixAuthorizationCode},
		{"access token", PrefixAccessToken},
		{"refresh token", PrefixRefreshToken},
		{"no prefix", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := GenerateToken(tt.prefix)

			material := tok
			if tt.prefix != "" {
				if !strings.HasPrefix(tok, tt.prefix+"_") {
					t.Fatalf("GenerateToken(%q) = %q, missing prefix", tt.prefix, tok)
				}
				material = strings.TrimPrefix(tok, tt.prefix+"_")
			}

			raw, err := base64.RawURLEncoding.DecodeString(material)
			if err != nil {
				t.Fatalf("token material is not base64url: %v", err)
			}
			if len(raw) != 32 {
				t.Errorf("token material = %d bytes, want 32", len(raw))
			}
			if TokenPrefix(tok) != tt.prefix {
				t.Errorf("TokenPrefix() = %q, want %q", TokenPrefix(tok), tt.prefix)
			}
		})
	}

	if GenerateToken(PrefixAccessToken) == GenerateToken(PrefixAccessToken) {
		t.Error("GenerateToken() returned the same value twice")
	}
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Errorf("HashToken(abc) = %q, want %q", got, want)
	}

	tok := GenerateToken(PrefixRefreshToken)
	h := HashToken(tok)
	if len(h) != 64 {
		t.Errorf("len(HashToken()) = %d, want 64", len(h))
	}
	if h == tok || strings.Contains(h, tok) {
		t.Error("hash must not contain the plaintext token")
	}
}

func TestVerifyTokenHash(t *testing.T) {
	tok := GenerateToken(PrefixAccessToken)
	h := HashToken(tok)

	tests := []struct {
		name  string
		token string
		hash  string
		want  bool
	}{
		{"match", tok, h, true},
		{"other token", GenerateToken(PrefixAccessToken), h, false},
		{"truncated hash", tok, h[:32], false},
		{"uppercase hash", tok, strings.ToUpper(h), false},
		{"empty hash", tok, "", false},
		{"plaintext as hash", tok, tok, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyTokenHash(tt.token, tt.hash); got != tt.want {
				t.Errorf("VerifyTokenHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("secret", "secret") {
		t.Error("equal strings reported different")
	}
	if ConstantTimeEqual("secret", "secreT") {
		t.Error("different strings reported equal")
	}
	if ConstantTimeEqual("secret", "secret-longer") {
		t.Error("different lengths reported equal")
	}
}
