package auth

import "testing"

func TestGateEmptyListAllowsEveryone(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	if !g.Allowed(42) {
		t.Error("Allowed(42) = false, want true for empty list")
	}
}

func TestGateMembership(t *testing.T) {
	t.Parallel()

	g := NewGate([]int64{1, 2, 3})
	if !g.Allowed(2) {
		t.Error("Allowed(2) = false, want true")
	}
	if g.Allowed(4) {
		t.Error("Allowed(4) = true, want false")
	}
}

func TestGateIgnoresZeroEntries(t *testing.T) {
	t.Parallel()

	// A stray zero in the config must not turn the list into allow-all.
	g := NewGate([]int64{0, 7})
	if g.Allowed(42) {
		t.Error("Allowed(42) = true, want false")
	}
	if !g.Allowed(7) {
		t.Error("Allowed(7) = false, want true")
	}
}
