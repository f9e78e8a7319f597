package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if _, ok := store.Get(ctx, "missing"); ok {
		t.Error("Get on missing key returned ok")
	}

	store.Set(ctx, "k", "v", time.Minute)
	if v, ok := store.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v; want v, true", v, ok)
	}

	store.Delete(ctx, "k")
	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("key survived Delete")
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if !store.SetNX(ctx, "once", "1", time.Minute) {
		t.Fatal("first SetNX failed")
	}
	if store.SetNX(ctx, "once", "2", time.Minute) {
		t.Error("second SetNX succeeded on existing key")
	}
	if v, _ := store.Get(ctx, "once"); v != "1" {
		t.Errorf("value = %q, want the first write", v)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	store.Set(ctx, "short", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := store.Get(ctx, "short"); ok {
		t.Error("key survived its TTL")
	}
	if !store.SetNX(ctx, "short", "again", time.Minute) {
		t.Error("SetNX blocked by an expired key")
	}
}

func TestNewFallsBackWithoutAddr(t *testing.T) {
	store, err := New("", "", 0)
	if err != nil {
		t.Fatalf("New with empty addr: %v", err)
	}
	ctx := context.Background()
	store.Set(ctx, "k", "v", 0)
	if v, ok := store.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("fallback store Get = %q, %v", v, ok)
	}
}
