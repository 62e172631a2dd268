// Package lock provides short-lived named locks used to keep scheduler replicas and
// per-cart reminder work from overlapping.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the lock expired or was taken by someone else.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires named locks with a TTL.
type Locker interface {
	// TryAcquire returns (nil, false, nil) when the key is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}
