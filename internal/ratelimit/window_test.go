package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/ratelimit"
)

func TestFixedWindowCeiling(t *testing.T) {
	const limit = 5
	lim, err := ratelimit.NewFixedWindow(limit, time.Minute, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	admitted := 0
	for i := 0; i < limit*3; i++ {
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

func TestFixedWindowConcurrentCeiling(t *testing.T) {
	const (
		limit   = 80
		callers = 200
	)
	lim, err := ratelimit.NewFixedWindow(limit, time.Minute, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	var admitted, rejected atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := lim.Admit(ctx, "sender-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("expected exactly %d admitted, got %d", limit, got)
	}
	if got := rejected.Load(); got != callers-limit {
		t.Fatalf("expected exactly %d rejected, got %d", callers-limit, got)
	}
}

func TestFixedWindowReset(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	lim, err := ratelimit.NewFixedWindow(2, time.Second, clock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
			t.Fatalf("call %d should have been admitted", i)
		}
	}
	if ok, _ := lim.Admit(ctx, "sender-1"); ok {
		t.Fatal("window should be exhausted")
	}

	// A call issued after the reset deadline always succeeds, even when the
	// previous window was fully consumed.
	now = now.Add(1100 * time.Millisecond)
	if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
		t.Fatal("call after window reset should have been admitted")
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	lim, err := ratelimit.NewFixedWindow(1, time.Minute, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if ok, _ := lim.Admit(ctx, "sender-1"); !ok {
		t.Fatal("first call for sender-1 should be admitted")
	}
	if ok, _ := lim.Admit(ctx, "sender-1"); ok {
		t.Fatal("second call for sender-1 should be rejected")
	}
	if ok, _ := lim.Admit(ctx, "sender-2"); !ok {
		t.Fatal("sender-2 has its own window and should be admitted")
	}
}

func TestNewFixedWindowValidation(t *testing.T) {
	if _, err := ratelimit.NewFixedWindow(0, time.Second, nil); err == nil {
		t.Fatal("expected error for zero limit")
	}
	if _, err := ratelimit.NewFixedWindow(1, 0, nil); err == nil {
		t.Fatal("expected error for zero window")
	}
}
