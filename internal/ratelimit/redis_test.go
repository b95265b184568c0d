package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/ratelimit"
)

func newRedisWindow(t *testing.T, limit int, window time.Duration) (*ratelimit.RedisWindow, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim, err := ratelimit.NewRedisWindow(rdb, limit, window, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return lim, mr
}

func TestRedisWindowCeiling(t *testing.T) {
	const limit = 3
	lim, _ := newRedisWindow(t, limit, time.Minute)

	ctx := context.Background()
	admitted := 0
	for i := 0; i < limit*2; i++ {
		ok, err := lim.Admit(ctx, "sender-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Fatalf("expected %d admitted, got %d", limit, admitted)
	}
}

func TestRedisWindowResetAfterExpiry(t *testing.T) {
	lim, mr := newRedisWindow(t, 1, time.Second)

	ctx := context.Background()
	if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
		t.Fatal("first call should be admitted")
	}
	if ok, _ := lim.Admit(ctx, "sender-1"); ok {
		t.Fatal("window should be exhausted")
	}

	mr.FastForward(1100 * time.Millisecond)

	if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
		t.Fatal("call after window expiry should be admitted")
	}
}

func TestRedisWindowKeysAreIndependent(t *testing.T) {
	lim, _ := newRedisWindow(t, 1, time.Minute)

	ctx := context.Background()
	if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
		t.Fatal("first call for sender-1 should be admitted")
	}
	if ok, _ := lim.Admit(ctx, "sender-2"); !ok {
		t.Fatal("sender-2 has its own window and should be admitted")
	}
}

func TestRedisWindowSurfacesConnectionErrors(t *testing.T) {
	lim, mr := newRedisWindow(t, 1, time.Minute)
	mr.Close()

	if _, err := lim.Admit(context.Background(), "sender-1"); err == nil {
		t.Fatal("expected error once redis is unreachable")
	}
}
