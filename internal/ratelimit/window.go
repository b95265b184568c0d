package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// FixedWindow is an in-process fixed-window limiter. Windows are created
// lazily per key, reset once the wall clock passes their deadline, and are
// bounded in number by the count of distinct keys.
//
// This is a process-local approximation: multiple worker processes each keep
// their own windows and do not coordinate. The queue's global dispatch
// ceiling provides the second, coarser layer of protection.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*windowState
}

type windowState struct {
	count   int
	resetAt time.Time
}

// NewFixedWindow constructs a limiter admitting up to limit calls per key per
// window. The now function may be overridden in tests; nil means time.Now.
func NewFixedWindow(limit int, window time.Duration, now func() time.Time) (*FixedWindow, error) {
	if limit < 1 {
		return nil, errors.New("ratelimit: limit must be >= 1")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]*windowState),
	}, nil
}

// Admit reports whether one more call is allowed for key within the current
// window. The count is incremented only when the call is admitted, so two
// concurrent callers can never both consume the last slot.
func (f *FixedWindow) Admit(_ context.Context, key string) (bool, error) {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.windows[key]
	if !ok {
		state = &windowState{resetAt: now.Add(f.window)}
		f.windows[key] = state
	}

	if now.After(state.resetAt) {
		state.count = 0
		state.resetAt = now.Add(f.window)
	}

	if state.count >= f.limit {
		return false, nil
	}
	state.count++
	return true, nil
}
