package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTest(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisGetSetRemove(t *testing.T) {
	mr, rdb, done := newRedisTest(t)
	defer done()

	s := NewRedis(rdb, "test")
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, CanonicalTokenKey); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, CanonicalTokenKey, "tok"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := mr.Get("test:access_token"); got != "tok" {
		t.Fatalf("expected prefixed key in redis, got %q", got)
	}
	v, ok, err := s.Get(ctx, CanonicalTokenKey)
	if err != nil || !ok || v != "tok" {
		t.Fatalf("get mismatch: %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Remove(ctx, CanonicalTokenKey, LegacyTokenKey); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if mr.Exists("test:access_token") {
		t.Fatal("expected key deleted")
	}
}

func TestRedisWatchDeliversOtherOrigins(t *testing.T) {
	_, rdb, done := newRedisTest(t)
	defer done()

	writer := NewRedis(rdb, "test")
	reader := NewRedis(rdb, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	own, err := writer.Watch(ctx)
	if err != nil {
		t.Fatalf("writer watch failed: %v", err)
	}
	other, err := reader.Watch(ctx)
	if err != nil {
		t.Fatalf("reader watch failed: %v", err)
	}

	if err := writer.Set(ctx, CanonicalTokenKey, "tok"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	select {
	case change := <-other:
		if change.Key != CanonicalTokenKey || change.Origin != writer.Origin() {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected change from writer")
	}

	if err := writer.Remove(ctx, CanonicalTokenKey); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	select {
	case change := <-other:
		if change.Key != CanonicalTokenKey {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected change for removal")
	}

	select {
	case change := <-own:
		t.Fatalf("writer must not see its own change, got %+v", change)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBackendDownIsWrapped(t *testing.T) {
	mr, rdb, done := newRedisTest(t)
	defer done()

	s := NewRedis(rdb, "test")
	mr.Close()

	if _, _, err := s.Get(context.Background(), CanonicalTokenKey); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if err := s.Set(context.Background(), CanonicalTokenKey, "x"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
