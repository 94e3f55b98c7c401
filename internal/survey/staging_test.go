package survey

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
)

func testSession(id, tileID string) *UploadSession {
	return &UploadSession{
		UploadID:  id,
		TileID:    tileID,
		Features:  geojson.NewFeatureCollection(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
}

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(8, time.Minute)

	if _, ok := store.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown id")
	}

	if err := store.Put(ctx, testSession("u1", "AA")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := store.Get(ctx, "u1")
	if !ok {
		t.Fatal("expected hit for u1")
	}
	if got.TileID != "AA" {
		t.Errorf("expected tile AA, got %s", got.TileID)
	}

	store.Delete(ctx, "u1")
	if _, ok := store.Get(ctx, "u1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(8, 30*time.Millisecond)

	if err := store.Put(ctx, testSession("u1", "AA")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := store.Get(ctx, "u1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	// Indistinguishable from an id that never existed.
	if _, ok := store.Get(ctx, "u1"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestMemoryStoreCapacityEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Minute)

	store.Put(ctx, testSession("u1", "AA"))
	store.Put(ctx, testSession("u2", "AB"))
	store.Put(ctx, testSession("u3", "AC"))

	if _, ok := store.Get(ctx, "u1"); ok {
		t.Fatal("expected oldest session evicted at capacity")
	}
	if _, ok := store.Get(ctx, "u2"); !ok {
		t.Fatal("expected u2 to survive")
	}
	if _, ok := store.Get(ctx, "u3"); !ok {
		t.Fatal("expected u3 to survive")
	}
}
