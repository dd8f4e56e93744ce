package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	set := NewPauseSet()
	if err := Guard(set, "rewards"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Set("rewards", true) {
		t.Fatalf("expected change")
	}
	if set.Set("rewards", true) {
		t.Fatalf("second pause should be a no-op")
	}
	if err := Guard(set, "rewards"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(set, "other"); err != nil {
		t.Fatalf("other modules unaffected: %v", err)
	}
	set.Set("rewards", false)
	if err := Guard(set, "rewards"); err != nil {
		t.Fatalf("expected resume: %v", err)
	}
	if err := Guard(nil, "rewards"); err != nil {
		t.Fatalf("nil view never blocks: %v", err)
	}
}
