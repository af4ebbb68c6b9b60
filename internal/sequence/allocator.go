// Package sequence issues per-outlet token numbers. Mutual exclusion is
// delegated entirely to the docstore's conditional write; this package
// only retries lost races, with a bounded attempt count.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"cafeteria-system/internal/docstore"
)

// ErrAllocationFailed means every retry attempt was used up. The caller
// must not persist an order without a token.
var ErrAllocationFailed = errors.New("token allocation failed")

const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = 25 * time.Millisecond
)

type Allocator struct {
	counters    docstore.CounterStore
	maxAttempts int
	backoffBase time.Duration
}

type Option func(*Allocator)

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.backoffBase = d
		}
	}
}

func New(counters docstore.CounterStore, opts ...Option) *Allocator {
	a := &Allocator{
		counters:    counters,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the next token for the outlet. A missing counter is
// initialised inside the same atomic unit, so the first allocation
// returns 1. Only docstore.ErrConflict is retried; any other failure is
// fatal to this call.
func (a *Allocator) Allocate(ctx context.Context, outletID string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		token, err := a.counters.MutateCounter(ctx, outletID, func(lastToken int) int {
			return lastToken + 1
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return 0, fmt.Errorf("allocate token for outlet %q: %w", outletID, err)
		}
		lastErr = err
		if attempt == a.maxAttempts {
			break
		}
		select {
		case <-time.After(a.backoff(attempt)):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("allocate token for outlet %q after %d attempts: %w (%w)",
		outletID, a.maxAttempts, ErrAllocationFailed, lastErr)
}

// backoff grows linearly with the attempt number plus jitter, so two
// colliding allocators drift apart instead of re-colliding.
func (a *Allocator) backoff(attempt int) time.Duration {
	base := a.backoffBase * time.Duration(attempt)
	jitter := time.Duration(rand.Int63n(int64(a.backoffBase)))
	return base + jitter
}

// FormatOrderNumber derives the human-facing order number from a token.
// Purely presentational; the token is the uniqueness source.
func FormatOrderNumber(prefix string, token int) string {
	return fmt.Sprintf("%s-%04d", prefix, token)
}
