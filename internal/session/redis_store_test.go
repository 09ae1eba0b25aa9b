package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreInvalidURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	reg := store.Registry("sess-1", time.Hour)

	payload := media.Pending{Filename: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	ref, err := reg.Register(ctx, payload)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !media.IsEphemeral(ref) {
		t.Errorf("expected ephemeral reference, got %s", ref)
	}

	got, ok, err := reg.Get(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("Get() = _, %v, %v; want found", ok, err)
	}
	if got.Filename != payload.Filename || got.ContentType != payload.ContentType || !bytes.Equal(got.Data, payload.Data) {
		t.Errorf("Get() = %+v, want %+v", got, payload)
	}

	if ttl := s.TTL("pending:sess-1"); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %v", ttl)
	}
}

func TestRegistryRejectsEmptyPayload(t *testing.T) {
	store, _ := setupTestRedis(t)
	reg := store.Registry("sess-1", time.Hour)

	if _, err := reg.Register(context.Background(), media.Pending{Filename: "x.png"}); !errors.Is(err, media.ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestRegistryMissingReference(t *testing.T) {
	store, _ := setupTestRedis(t)
	reg := store.Registry("sess-1", time.Hour)

	_, ok, err := reg.Get(context.Background(), "blob:pending/nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected missing reference to be reported as not found")
	}
}

func TestRegistryIsolatedPerSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	a := store.Registry("sess-a", time.Hour)
	b := store.Registry("sess-b", time.Hour)

	ref, err := a.Register(ctx, media.Pending{Filename: "a.png", Data: []byte("a")})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, ok, _ := b.Get(ctx, ref); ok {
		t.Error("expected reference registered in one session to be invisible to another")
	}
}

func TestRegistryClear(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	reg := store.Registry("sess-1", time.Hour)

	for _, name := range []string{"a.png", "b.png"} {
		if _, err := reg.Register(ctx, media.Pending{Filename: name, Data: []byte(name)}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if n, _ := reg.Len(ctx); n != 2 {
		t.Fatalf("expected 2 pending entries, got %d", n)
	}

	if err := reg.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Exists("pending:sess-1") {
		t.Error("expected pending hash to be deleted")
	}
	if n, _ := reg.Len(ctx); n != 0 {
		t.Errorf("expected 0 pending entries after Clear, got %d", n)
	}
}

func TestRegistryExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	reg := store.Registry("sess-1", time.Minute)

	ref, err := reg.Register(ctx, media.Pending{Filename: "a.png", Data: []byte("a")})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, ok, _ := reg.Get(ctx, ref); ok {
		t.Error("expected pending entry to expire")
	}
}

func TestRegistryDefaultTTL(t *testing.T) {
	store, _ := setupTestRedis(t)
	if reg := store.Registry("sess-1", 0); reg.ttl != defaultTTL {
		t.Errorf("expected default TTL %v, got %v", defaultTTL, reg.ttl)
	}
}
