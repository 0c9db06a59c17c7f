package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Recycler hands one lazily acquired resource to one caller at a time,
// retrying failed operations with a fresh resource. The resource is replaced
// after every Every successful uses and after any failed attempt, and is
// released on Close.
type Recycler[T any] struct {
	acquire func(ctx context.Context) (T, error)
	release func(T) error
	backoff Backoff
	every   int

	mu   sync.Mutex
	res  T
	held bool
	uses int
}

// NewRecycler creates a Recycler. every <= 0 never recycles on use count.
// A nil release is a no-op.
func NewRecycler[T any](acquire func(ctx context.Context) (T, error), release func(T) error, b Backoff, every int) *Recycler[T] {
	if release == nil {
		release = func(T) error { return nil }
	}
	// Every failure gets a fresh resource, so any error is retried unless
	// the caller narrows it.
	if b.Retryable == nil {
		b.Retryable = func(error) bool { return true }
	}
	b = b.withDefaults()
	return &Recycler[T]{acquire: acquire, release: release, backoff: b, every: every}
}

// Use runs fn with the current resource under the retry policy.
func (r *Recycler[T]) Use(ctx context.Context, fn func(ctx context.Context, res T) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Retry(ctx, r.backoff, func(ctx context.Context) error {
		res, err := r.current(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, res); err != nil {
			r.drop()
			return err
		}
		r.uses++
		if r.every > 0 && r.uses >= r.every {
			zap.L().Debug("resilience: recycling resource", zap.Int("uses", r.uses))
			r.drop()
		}
		return nil
	})
}

// Close releases the held resource.
func (r *Recycler[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.held {
		return nil
	}
	res := r.res
	r.reset()
	return eris.Wrap(r.release(res), "resilience: release resource")
}

func (r *Recycler[T]) current(ctx context.Context) (T, error) {
	if r.held {
		return r.res, nil
	}
	res, err := r.acquire(ctx)
	if err != nil {
		var zero T
		return zero, eris.Wrap(err, "resilience: acquire resource")
	}
	r.res, r.held, r.uses = res, true, 0
	return res, nil
}

func (r *Recycler[T]) drop() {
	if !r.held {
		return
	}
	if err := r.release(r.res); err != nil {
		zap.L().Warn("resilience: release resource", zap.Error(err))
	}
	r.reset()
}

func (r *Recycler[T]) reset() {
	var zero T
	r.res, r.held, r.uses = zero, false, 0
}
