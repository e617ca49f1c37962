package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
)

const tipAccountTTL = 30 * time.Minute

// TipAccountCache is an explicit per-process singleton rather than a
// lazily-initialized module-level cache, so its lifetime is owned
// alongside the rest of the engine wiring instead of hanging off
// ClusterRuntime. One instance is shared by the Materializer (building
// the tip tx) and the BundleManager (verifying the reported tip
// account), keyed by cluster.
type TipAccountCache struct {
	be BlockEngineClient

	mu       sync.Mutex
	accounts map[common.Cluster][]string
	fetchAt  map[common.Cluster]time.Time

	logger log.Logger
}

func NewTipAccountCache(be BlockEngineClient) *TipAccountCache {
	return &TipAccountCache{
		be:       be,
		accounts: make(map[common.Cluster][]string),
		fetchAt:  make(map[common.Cluster]time.Time),
		logger:   log.NewModuleLogger(log.BlockEngine),
	}
}

// Get returns the cached tip-account list, refreshing it if stale:
// within the TTL window it issues no network I/O at all; once stale,
// exactly one refresh is attempted. On refresh failure, a stale cache
// is returned rather than an error, since a slightly out-of-date tip
// account list is still usable.
func (c *TipAccountCache) Get(ctx context.Context, cluster common.Cluster) ([]string, error) {
	c.mu.Lock()
	cached := c.accounts[cluster]
	fetchedAt, ok := c.fetchAt[cluster]
	fresh := ok && time.Since(fetchedAt) < tipAccountTTL
	c.mu.Unlock()

	if fresh {
		return cached, nil
	}

	fresh2, err := c.be.GetTipAccounts(ctx, cluster)
	if err != nil {
		if len(cached) > 0 {
			c.logger.Warn("tip-account refresh failed, serving stale cache", "cluster", cluster, "err", err)
			return cached, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.accounts[cluster] = fresh2
	c.fetchAt[cluster] = time.Now()
	c.mu.Unlock()
	return fresh2, nil
}

// PickRandom returns one tip account chosen uniformly at random.
func (c *TipAccountCache) PickRandom(ctx context.Context, cluster common.Cluster) (string, error) {
	accounts, err := c.Get(ctx, cluster)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", errNoTipAccounts
	}
	return accounts[rand.Intn(len(accounts))], nil
}

// Contains reports whether pubkey is a known tip account, using
// whatever is currently cached.
func (c *TipAccountCache) Contains(ctx context.Context, cluster common.Cluster, pubkey string) (bool, error) {
	accounts, err := c.Get(ctx, cluster)
	if err != nil {
		return false, err
	}
	for _, a := range accounts {
		if a == pubkey {
			return true, nil
		}
	}
	return false, nil
}

// randomTipLamports draws the tip amount from 1000 + U[0, 50000).
func randomTipLamports() uint64 {
	return 1000 + uint64(rand.Intn(50000))
}

var errNoTipAccounts = tipAccountsEmptyError{}

type tipAccountsEmptyError struct{}

func (tipAccountsEmptyError) Error() string { return "no tip accounts available" }
