package ratelimit

import (
	"testing"
)

// TestAllowWithinBurst verifies a fresh limiter grants up to burst requests
func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 5; i++ {
		if !l.Allow("route-a", 1, 5) {
			t.Errorf("Request %d within burst should be allowed", i)
		}
	}
	if l.Allow("route-a", 1, 5) {
		t.Error("Request beyond burst should be rejected")
	}
}

// TestKeysAreIndependent verifies limiters do not share buckets
func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 3; i++ {
		l.Allow("route-a", 1, 3)
	}
	if l.Allow("route-a", 1, 3) {
		t.Error("route-a bucket should be drained")
	}
	if !l.Allow("route-b", 1, 3) {
		t.Error("route-b bucket should be untouched")
	}
}

// TestReconfigureOnChange verifies hot-reloaded limits take effect
func TestReconfigureOnChange(t *testing.T) {
	l := NewLimiter()

	l.Allow("route-a", 1, 1)
	if l.Allow("route-a", 1, 1) {
		t.Error("Burst of 1 should be drained")
	}

	// Reload with a larger burst; the refreshed bucket admits again
	if !l.Allow("route-a", 100, 50) {
		t.Error("Reconfigured limiter should allow requests")
	}
}

// TestRemove verifies a removed key starts fresh
func TestRemove(t *testing.T) {
	l := NewLimiter()

	l.Allow("route-a", 1, 1)
	l.Remove("route-a")
	if !l.Allow("route-a", 1, 1) {
		t.Error("Removed key should start with a full bucket")
	}
}
