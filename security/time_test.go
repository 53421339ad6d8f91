package security

import (
	"testing"
	"time"
)

func TestClock_CalculateExpiry(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := Clock(func() time.Time { return base })

	tests := []struct {
		name string
		ttl  int64
		want time.Time
	}{
		{"authorization code", 600, base.Add(10 * time.Minute)},
		{"access token", 3600, base.Add(time.Hour)},
		{"refresh token", 30 * 24 * 3600, base.Add(30 * 24 * time.Hour)},
		{"zero", 0, base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.CalculateExpiry(tt.ttl); !got.Equal(tt.want) {
				t.Errorf("CalculateExpiry(%d) = %v, want %v", tt.ttl, got, tt.want)
			}
		})
	}
}

func TestClock_IsExpired(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := Clock(func() time.Time { return base })

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", base.Add(time.Second), false},
		{"exactly now", base, false},
		{"past", base.Add(-time.Second), true},
		{"zero", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.IsExpired(tt.expiresAt); got != tt.want {
				t.Errorf("IsExpired(%v) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestWallClockHelpers(t *testing.T) {
	exp := CalculateExpiry(3600)
	if IsExpired(exp) {
		t.Error("token expiring in an hour reported expired")
	}
	if !IsExpired(time.Now().Add(-time.Minute)) {
		t.Error("token expired a minute ago reported valid")
	}

	var nilClock Clock
	if nilClock.Now().IsZero() {
		t.Error("nil Clock should fall back to the wall clock")
	}
}
