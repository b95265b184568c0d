// Package ratelimit provides fixed-window admission control for send
// attempts, keyed by sender identity.
package ratelimit

import "context"

// Limiter gates send attempts for a key. Admit returns false when the key has
// exhausted its window; the caller is expected to retry later rather than
// treat rejection as a failure.
type Limiter interface {
	Admit(ctx context.Context, key string) (bool, error)
}
