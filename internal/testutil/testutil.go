package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/sparcrpg/sparc-oauth/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString generates a random base64url string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns a verifier and its S256 challenge computed
// independently of the code under test.
func GeneratePKCEPair() (verifier, challenge string) {
	verifier = GenerateRandomString(64)
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// TestClient returns a public client for app "app-test" with the given
// redirect URI and allowed scopes.
func TestClient(clientID, redirectURI string, scopes ...string) *storage.Client {
	return &storage.Client{
		ClientID:      clientID,
		AppID:         "app-" + clientID,
		AppName:       "Test App " + clientID,
		RedirectURIs:  []string{redirectURI},
		AllowedScopes: scopes,
		ClientType:    storage.ClientTypePublic,
		CreatedAt:     time.Now(),
	}
}
