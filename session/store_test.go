package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "sa", ttl), mr
}

func TestGetEmptySlot(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	value, err := store.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty slot, got %q", value)
	}
}

func TestSetGetClear(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "p1", "refresh-token-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	value, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "refresh-token-1" {
		t.Fatalf("unexpected slot value: %q", value)
	}

	if err := store.Clear(ctx, "p1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	value, err = store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected cleared slot, got %q", value)
	}
}

func TestSetOverwrites(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "p1", "first"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Set(ctx, "p1", "second"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	value, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "second" {
		t.Fatalf("expected last write to win, got %q", value)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "p1", "token-a"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Set(ctx, "p2", "token-b"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Clear(ctx, "p1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	value, err := store.Get(ctx, "p2")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "token-b" {
		t.Fatalf("clearing p1 must not touch p2, got %q", value)
	}
}

func TestSlotExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, "p1", "short-lived"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	value, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected expired slot, got %q", value)
	}
}

func TestClearEmptySlotIsNoOp(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	if err := store.Clear(context.Background(), "never-set"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
}

func TestUnavailableRedis(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	mr.Close()

	if _, err := store.Get(context.Background(), "p1"); err == nil {
		t.Fatal("expected error from closed redis")
	}
	if err := store.Set(context.Background(), "p1", "x"); err == nil {
		t.Fatal("expected error from closed redis")
	}
}
