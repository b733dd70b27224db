package qr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hiktan44/whatsappmini-sub000/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
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

func TestRender(t *testing.T) {
	png, err := Render("2@abc123")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(png) == 0 {
		t.Fatalf("expected non-empty png")
	}
	// PNG magic bytes
	if png[0] != 0x89 || png[1] != 'P' || png[2] != 'N' || png[3] != 'G' {
		t.Fatalf("expected png header, got % x", png[:4])
	}
}

func TestRegistry_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	reg := NewRegistryWithNow(store.NewMemoryWithNow(clock.Now), clock.Now)

	entry, err := reg.Put(ctx, "s1", "payload-1", []byte("png"), time.Minute)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if entry.ExpiresAt != entry.IssuedAt+time.Minute.Milliseconds() {
		t.Fatalf("expected expiresAt = issuedAt + ttl, got issued=%d expires=%d", entry.IssuedAt, entry.ExpiresAt)
	}

	got, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Payload != "payload-1" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if err := reg.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ = reg.Get(ctx, "s1")
	if got != nil {
		t.Fatalf("expected entry gone after delete")
	}
}

func TestRegistry_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	// Backing store TTL deliberately longer than the entry's ExpiresAt:
	// the registry must hide the entry on its own clock.
	backing := store.NewMemoryWithNow(clock.Now)
	reg := NewRegistryWithNow(backing, clock.Now)

	if _, err := reg.Put(ctx, "s1", "payload-1", []byte("png"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, _ := backing.Get(ctx, "wa:qr:s1")
	if !ok {
		t.Fatalf("expected raw entry in backing store")
	}
	_ = backing.Set(ctx, "wa:qr:s1", data, time.Hour)

	clock.Advance(61 * time.Second)

	got, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil past expiresAt, got %+v", got)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(store.NewMemory())

	got, err := reg.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing entry")
	}
}
