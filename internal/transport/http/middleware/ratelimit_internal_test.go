package middleware

import (
	"testing"
	"time"
)

func newTestLimiter(now *time.Time) *RateLimiter {
	rl := NewRateLimiter(60)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_EvictsIdleClientsPeriodically(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&now)

	rl.allow("192.0.2.1")
	now = now.Add(11 * time.Minute)

	// Within evictEvery of the last sweep nothing is scanned.
	rl.lastEvict = now
	rl.allow("192.0.2.2")
	if len(rl.clients) != 2 {
		t.Fatalf("clients = %d, want 2 before the next sweep", len(rl.clients))
	}

	now = now.Add(time.Minute)
	rl.allow("192.0.2.3")
	if _, ok := rl.clients["192.0.2.1"]; ok {
		t.Error("idle client was not evicted")
	}
	if _, ok := rl.clients["192.0.2.2"]; !ok {
		t.Error("recent client was evicted")
	}
}

func TestRateLimiter_RefusesNewClientsWhenFull(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&now)
	rl.maxClients = 2

	if !rl.allow("192.0.2.1") || !rl.allow("192.0.2.2") {
		t.Fatal("first clients must be allowed")
	}
	if rl.allow("192.0.2.3") {
		t.Error("client beyond capacity was allowed")
	}
	if !rl.allow("192.0.2.1") {
		t.Error("known client must still be served")
	}
	if len(rl.clients) != 2 {
		t.Errorf("clients = %d, want 2", len(rl.clients))
	}

	now = now.Add(11 * time.Minute)
	if !rl.allow("192.0.2.3") {
		t.Error("client refused after idle entries expired")
	}
}
