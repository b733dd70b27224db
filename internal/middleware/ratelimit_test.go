package middleware

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	rl := NewRateLimiterWithNow(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("u1") {
		t.Fatalf("expected 4th request blocked")
	}
	// Other keys are unaffected.
	if !rl.Allow("u2") {
		t.Fatalf("expected u2 allowed")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	rl := NewRateLimiterWithNow(1, time.Minute, clock.Now)

	if !rl.Allow("u1") {
		t.Fatalf("first request should be allowed")
	}
	if rl.Allow("u1") {
		t.Fatalf("second request should be blocked")
	}

	clock.Advance(61 * time.Second)
	if !rl.Allow("u1") {
		t.Fatalf("expected allow after window reset")
	}
}
