package security

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		v := GenerateCodeVerifier()
		if len(v) != 43 {
			t.Fatalf("len(GenerateCodeVerifier()) = %d, want 43", len(v))
		}
		if !validVerifier(v) {
			t.Fatalf("GenerateCodeVerifier() = %q contains characters outside the unreserved set", v)
		}
		if seen[v] {
			t.Fatalf("GenerateCodeVerifier() repeated %q", v)
		}
		seen[v] = true
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	// RFC 7636 Appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := GenerateCodeChallenge(verifier); got != want {
		t.Errorf("GenerateCodeChallenge() = %q, want %q", got, want)
	}

	sum := sha256.Sum256([]byte(verifier))
	manual := base64.RawURLEncoding.EncodeToString(sum[:])
	if manual != want {
		t.Errorf("manual challenge = %q, want %q", manual, want)
	}
	if strings.Contains(want, "=") {
		t.Error("challenge must be unpadded")
	}
}

func TestVerifyCodeChallenge(t *testing.T) {
	verifier := GenerateCodeVerifier()
	challenge := GenerateCodeChallenge(verifier)

	tests := []struct {
		name      string
		verifier  string
		challenge string
		want      bool
	}{
		{"matching pair", verifier, challenge, true},
		{"rfc vector", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", true},
		{"other verifier", GenerateCodeVerifier(), challenge, false},
		{"empty verifier", "", challenge, false},
		{"empty challenge", verifier, "", false},
		{"too short verifier", strings.Repeat("a", 42), GenerateCodeChallenge(strings.Repeat("a", 42)), false},
		{"too long verifier", strings.Repeat("a", 129), GenerateCodeChallenge(strings.Repeat("a", 129)), false},
		{"max length verifier", strings.Repeat("a", 128), GenerateCodeChallenge(strings.Repeat("a", 128)), true},
		{"invalid characters", strings.Repeat("a", 42) + "+", GenerateCodeChallenge(strings.Repeat("a", 42) + "+"), false},
		{"plain method challenge", verifier, verifier, false},
		{"padded challenge", verifier, challenge + "=", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyCodeChallenge(tt.verifier, tt.challenge); got != tt.want {
				t.Errorf("VerifyCodeChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}
