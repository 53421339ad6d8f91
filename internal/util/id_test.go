package util

import (
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := ""
	for i := 0; i < 100; i++ {
		id := NewID(now)
		if len(id) != 26 {
			t.Fatalf("len(NewID()) = %d, want 26", len(id))
		}
		if !IsID(id) {
			t.Fatalf("IsID(%q) = false", id)
		}
		if id <= prev {
			t.Fatalf("NewID() = %q not greater than previous %q", id, prev)
		}
		prev = id
	}

	later := NewID(now.Add(time.Hour))
	if later <= prev {
		t.Errorf("id for a later time %q sorts before %q", later, prev)
	}
}

func TestIsID(t *testing.T) {
	if IsID("not-a-ulid") {
		t.Error("IsID(not-a-ulid) = true")
	}
	if IsID("") {
		t.Error("IsID(\"\") = true")
	}
}
