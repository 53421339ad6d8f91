package testutil

import (
	"testing"
	"time"
)

func TestMockTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMockTime(start)

	if !m.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", m.Now(), start)
	}
	m.Advance(time.Hour)
	if !m.Now().Equal(start.Add(time.Hour)) {
		t.Errorf("after Advance Now() = %v", m.Now())
	}
	m.Set(start)
	if !m.Now().Equal(start) {
		t.Errorf("after Set Now() = %v", m.Now())
	}
}

func TestGeneratePKCEPair(t *testing.T) {
	v, c := GeneratePKCEPair()
	if len(v) != 64 {
		t.Errorf("len(verifier) = %d, want 64", len(v))
	}
	if len(c) != 43 {
		t.Errorf("len(challenge) = %d, want 43", len(c))
	}
}
