package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/railstack/go-resv/v1/syncbus"
)

var (
	// ErrNotAcquired is returned when the key is held by another owner and
	// the wait budget is exhausted. Callers should treat it as "resource
	// busy, retry later", not as a server fault.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrNotOwner is returned by Release when the key is currently held
	// under a different fencing token.
	ErrNotOwner = errors.New("lock: not owner")
	// ErrExpired is returned by Release when the handle's hold timeout has
	// already passed and nobody holds the key.
	ErrExpired = errors.New("lock: already expired")

	ErrEmptyKey        = errors.New("lock: empty key")
	ErrNonPositiveHold = errors.New("lock: hold timeout must be positive")
)

// Handle identifies a held lock. It is owned exclusively by the caller that
// acquired it until Release or until ExpiresAt passes, whichever comes first.
type Handle struct {
	Key        string
	OwnerToken string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Manager serializes access to a logical resource key across process
// boundaries.
type Manager interface {
	// TryAcquire attempts to take the lock once, failing fast with
	// ErrNotAcquired when the key is held.
	TryAcquire(ctx context.Context, key string, hold time.Duration) (Handle, error)
	// Acquire takes the lock, blocking up to wait for contention to clear.
	// A zero wait is equivalent to TryAcquire.
	Acquire(ctx context.Context, key string, hold, wait time.Duration) (Handle, error)
	// Release frees the lock identified by h. Only the owner token that
	// acquired the key may release it: a stale token yields ErrNotOwner,
	// a lapsed hold yields ErrExpired, and in both cases the current
	// holder (if any) is unaffected.
	Release(ctx context.Context, h Handle) error
}

const (
	backoffInitial = 100 * time.Millisecond
	backoffMax     = time.Second
)

func validate(key string, hold time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if hold <= 0 {
		return ErrNonPositiveHold
	}
	return nil
}

// acquireWithWait implements the shared contention loop: retry try() with
// full-jitter exponential backoff, woken early by release notifications on
// "unlock:"+key, until the wait budget or the caller's context runs out.
func acquireWithWait(ctx context.Context, bus syncbus.Bus, key string, wait time.Duration, try func(context.Context) (Handle, error)) (Handle, error) {
	h, err := try(ctx)
	if err == nil || !errors.Is(err, ErrNotAcquired) || wait <= 0 {
		return h, err
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var release chan struct{}
	if bus != nil {
		if ch, err := bus.Subscribe(wctx, "unlock:"+key); err == nil {
			release = ch
		}
	}

	backoff := backoffInitial
	for {
		sleep := time.Duration(rand.Int63n(int64(backoff)) + 1)
		timer := time.NewTimer(sleep)
		select {
		case <-wctx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return Handle{}, ctx.Err()
			}
			return Handle{}, fmt.Errorf("lock: acquire %q: %w", key, ErrNotAcquired)
		case <-release:
			timer.Stop()
		case <-timer.C:
		}

		h, err := try(wctx)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			// A deadline hit mid-attempt is still contention, not a
			// backend fault.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return Handle{}, fmt.Errorf("lock: acquire %q: %w", key, ErrNotAcquired)
			}
			return Handle{}, err
		}
		if backoff < backoffMax {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}
}
