package engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
	lru "github.com/hashicorp/golang-lru"

	"github.com/solbot/core/log"
)

const (
	dedupCap    = 3000
	dedupTrimTo = 2000

	// distDedupTTL bounds how long a signature is remembered in the
	// shared store; a signature older than this can legitimately be
	// re-seen (and re-processed) after a subscription gap.
	distDedupTTL = 10 * time.Minute
)

// signatureDedup is the per-cluster bounded set of recently-seen
// transaction signatures. First occurrence of a signature returns true
// ("new"); subsequent occurrences return false. Backed by
// hashicorp/golang-lru; Keys() returns oldest-first, which lets Add
// batch-evict down to dedupTrimTo instead of evicting one at a time.
//
// shared, when non-nil, is consulted before the local decision is
// trusted: running more than one process against the same cluster
// (horizontal scale-out) would otherwise let each replica's own
// logsSubscribe stream re-trigger the same signature. A shared-store
// error degrades to the local-only verdict rather than blocking or
// dropping the notification.
type signatureDedup struct {
	mu     sync.Mutex
	cache  *lru.Cache
	shared *redis.Client
	logger log.Logger
}

func newSignatureDedup() *signatureDedup {
	c, err := lru.New(dedupCap + 1) // +1 so Add never evicts out from under us before we trim
	if err != nil {
		panic(err) // only fails on non-positive size, which dedupCap never is
	}
	return &signatureDedup{cache: c, logger: log.NewModuleLogger(log.ClusterStream).With("component", "dedup")}
}

// withSharedStore attaches an optional cross-process dedup backend.
// Passing nil (the default) leaves dedup purely in-process.
func (d *signatureDedup) withSharedStore(client *redis.Client) *signatureDedup {
	d.shared = client
	return d
}

// Add reports whether signature was newly inserted (true) or already
// present (false), and trims the set once it exceeds dedupCap.
func (d *signatureDedup) Add(signature string) bool {
	d.mu.Lock()
	localNew := !d.cache.Contains(signature)
	if localNew {
		d.cache.Add(signature, struct{}{})
		if d.cache.Len() > dedupCap {
			keys := d.cache.Keys() // oldest first
			excess := d.cache.Len() - dedupTrimTo
			for i := 0; i < excess && i < len(keys); i++ {
				d.cache.Remove(keys[i])
			}
		}
	}
	d.mu.Unlock()

	if !localNew || d.shared == nil {
		return localNew
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := d.shared.WithContext(ctx).SetNX(signature, 1, distDedupTTL).Result()
	if err != nil {
		d.logger.Warn("shared dedup store unavailable, falling back to local-only", "err", err)
		return true
	}
	return ok
}

func (d *signatureDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}
