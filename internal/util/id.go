package util

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idOnce    sync.Once
	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy
)

// NewID returns a lexicographically sortable ULID for t. IDs generated
// within the same millisecond are strictly increasing.
func NewID(t time.Time) string {
	idOnce.Do(func() {
		idEntropy = ulid.Monotonic(rand.Reader, 0)
	})

	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), idEntropy).String()
}

// IsID reports whether s parses as a ULID.
func IsID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
