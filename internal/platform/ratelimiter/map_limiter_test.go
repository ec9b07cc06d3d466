package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowEnforcesBurstPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatal("burst of 2 must pass")
	}
	if l.Allow("a", now) {
		t.Fatal("third request in the same instant must be limited")
	}
	// Other keys have their own bucket.
	if !l.Allow("b", now) {
		t.Fatal("independent key must not be limited")
	}
	// Tokens refill over time.
	if !l.Allow("a", now.Add(2*time.Second)) {
		t.Fatal("bucket must refill")
	}
}

func TestNilAndEmptyKeyAllowAll(t *testing.T) {
	var l *MapLimiter
	if !l.Allow("a", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	if New(0, 10, time.Minute) != nil || New(10, 0, time.Minute) != nil {
		t.Fatal("invalid arguments must produce a nil limiter")
	}
	l = New(1, 1, time.Minute)
	for i := 0; i < 5; i++ {
		if !l.Allow("  ", time.Now()) {
			t.Fatal("blank key must always allow")
		}
	}
}

func TestIdleEntriesAreEvicted(t *testing.T) {
	l := New(100, 100, time.Minute)
	now := time.Now()

	l.Allow("stale", now)
	// Drive enough hits on another key to trigger the periodic eviction
	// pass well past the stale entry's TTL.
	later := now.Add(2 * time.Minute)
	for i := 0; i < evictEvery; i++ {
		l.Allow("busy", later)
	}

	l.mu.Lock()
	_, ok := l.byKey["stale"]
	l.mu.Unlock()
	if ok {
		t.Fatal("idle entry must be evicted")
	}
}
