package security

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestRateLimiter_Allow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(RateLimiterConfig{PerSecond: 1, Burst: 2})
	defer rl.Stop()
	rl.SetClock(clock.Now)

	if !rl.Allow("user:client") || !rl.Allow("user:client") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("user:client") {
		t.Error("third event inside the burst window should be denied")
	}
	if !rl.Allow("other:client") {
		t.Error("keys must be limited independently")
	}

	clock.Advance(time.Second)
	if !rl.Allow("user:client") {
		t.Error("token should be replenished after one second")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerSecond: 1, Burst: 1, MaxEntries: 3})
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("key-%d", i))
	}

	if got := rl.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := rl.Evictions(); got != 2 {
		t.Errorf("Evictions() = %d, want 2", got)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(RateLimiterConfig{PerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	defer rl.Stop()
	rl.SetClock(clock.Now)

	rl.Allow("old")
	clock.Advance(2 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if got := rl.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerSecond: 1, Burst: 1, CleanupInterval: time.Millisecond})
	rl.Stop()
	rl.Stop()
}
