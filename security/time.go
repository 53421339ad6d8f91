package security

import "time"

// Clock returns the current time. Expiry arithmetic goes through a Clock so
// tests can control it.
type Clock func() time.Time

// SystemClock is the wall clock.
var SystemClock Clock = time.Now

// Now returns the clock's current time; a nil Clock is the wall clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// CalculateExpiry returns now plus ttlSeconds.
func (c Clock) CalculateExpiry(ttlSeconds int64) time.Time {
	return c.Now().Add(time.Duration(ttlSeconds) * time.Second)
}

// IsExpired reports whether expiresAt is in the past. A zero expiry is
// treated as expired.
func (c Clock) IsExpired(expiresAt time.Time) bool {
	return c.Now().After(expiresAt)
}

// CalculateExpiry returns wall-clock now plus ttlSeconds.
func CalculateExpiry(ttlSeconds int64) time.Time {
	return SystemClock.CalculateExpiry(ttlSeconds)
}

// IsExpired reports whether expiresAt is before wall-clock now.
func IsExpired(expiresAt time.Time) bool {
	return SystemClock.IsExpired(expiresAt)
}
