package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// RPCThrottle bounds the number of in-flight blockchain RPCs for a
// single cluster. One instance is shared by the auto-discovery
// filter, the router, and the materializer for that cluster so they
// never collectively overrun the upstream RPC provider's rate limit.
type RPCThrottle struct {
	sem *semaphore.Weighted
}

// NewRPCThrottle builds a throttle with the given concurrency cap.
func NewRPCThrottle(capacity int64) *RPCThrottle {
	if capacity <= 0 {
		capacity = 1
	}
	return &RPCThrottle{sem: semaphore.NewWeighted(capacity)}
}

// Acquire blocks until a slot is free or ctx is done.
func (t *RPCThrottle) Acquire(ctx context.Context) error {
	return t.sem.Acquire(ctx, 1)
}

// Release returns the slot.
func (t *RPCThrottle) Release() {
	t.sem.Release(1)
}

// Do runs fn while holding one slot of the throttle.
func (t *RPCThrottle) Do(ctx context.Context, fn func() error) error {
	if err := t.Acquire(ctx); err != nil {
		return err
	}
	defer t.Release()
	return fn()
}
