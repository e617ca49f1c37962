package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v7"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
)

// ClusterDeps wires one cluster's worth of external collaborators.
// Engine builds exactly one clusterStack per entry; a process that
// only trades mainnet still normally supplies a devnet entry, since
// PreparedBundle rejection is what actually enforces "bundles are
// mainnet-only" (engine never special-cases devnet elsewhere).
type ClusterDeps struct {
	Cluster        common.Cluster
	Topics         map[TopicKey]string
	WsFactory      func(ctx context.Context) (ClusterWsClient, error)
	Rpc            ClusterRpcClient
	Swap           SwapAdapter
	Dex            DexAggregatorAdapter
	TradeLocal     TradeLocalAdapter
	BlockEngine    BlockEngineClient
	RpcConcurrency int64 // defaults to 2 when <= 0

	// SharedDedup is optional: when set, it backs the signature dedup
	// set across every replica sharing this cluster's logsSubscribe
	// stream. Nil runs dedup purely in-process, fine for a single
	// instance.
	SharedDedup *redis.Client
}

type clusterStack struct {
	cluster      common.Cluster
	topics       map[TopicKey]string
	runtime      *ClusterRuntime
	router       *Router
	auto         *AutoDiscoveryFilter
	materializer *Materializer
	bundles      *BundleManager
	volume       *VolumeTimer
	dispatcher   *Dispatcher
}

// Engine is the C4 facade: the only thing an Edge caller holds. It
// owns one clusterStack per configured cluster and exposes the
// lifecycle operations a keyless multi-tenant front end needs:
// Start/Stop a session, Materialize its pendingAction, Prepare/Submit
// a signed bundle, and read back its View.
type Engine struct {
	mu     sync.Mutex
	stacks map[common.Cluster]*clusterStack
	logger log.Logger
}

func NewEngine(deps []ClusterDeps) *Engine {
	e := &Engine{
		stacks: make(map[common.Cluster]*clusterStack),
		logger: log.NewModuleLogger(log.Session).With("component", "engine"),
	}
	for _, d := range deps {
		concurrency := d.RpcConcurrency
		if concurrency <= 0 {
			concurrency = 2
		}
		throttle := NewRPCThrottle(concurrency)
		runtime := newClusterRuntime(d.Cluster, d.WsFactory, d.SharedDedup)
		auto := NewAutoDiscoveryFilter(d.Rpc, throttle)
		router := NewRouter(d.Rpc, throttle, auto)
		tips := NewTipAccountCache(d.BlockEngine)
		materializer := NewMaterializer(d.Cluster, d.Rpc, throttle, d.Swap, d.Dex, d.TradeLocal, tips)
		bundles := NewBundleManager(d.Cluster, d.BlockEngine, tips)
		volume := NewVolumeTimer(runtime)
		dispatcher := NewDispatcher(runtime, router)

		e.stacks[d.Cluster] = &clusterStack{
			cluster:      d.Cluster,
			topics:       d.Topics,
			runtime:      runtime,
			router:       router,
			auto:         auto,
			materializer: materializer,
			bundles:      bundles,
			volume:       volume,
			dispatcher:   dispatcher,
		}
	}
	return e
}

// Run starts every cluster's dispatcher and volume-timer goroutines.
// It returns immediately; goroutines run until ctx is cancelled or
// Shutdown is called.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, stack := range e.stacks {
		stack.dispatcher.Start(ctx)
		stack.volume.Start(ctx)
	}
}

func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, stack := range e.stacks {
		stack.dispatcher.Stop()
		stack.volume.Stop()
	}
}

func (e *Engine) stackFor(cluster common.Cluster) (*clusterStack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stack, ok := e.stacks[cluster]
	if !ok {
		return nil, opErr("engine", fmt.Sprintf("no stack configured for cluster %q", cluster), nil)
	}
	return stack, nil
}

// Start installs cfg on owner's session (creating it lazily on first
// reference) and ensures the cluster's WebSocket subscription is
// live. On subscription failure the session start is rolled back so a
// caller never observes a "running" session with no underlying
// stream.
func (e *Engine) Start(ctx context.Context, cluster common.Cluster, owner string, cfg *BotConfig) error {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return err
	}
	cfg.Cluster = cluster

	session := stack.runtime.sessionFor(owner)
	session.start(cfg)

	if cfg.Mode == ModeSnipe {
		if err := stack.runtime.EnsureSubscription(ctx, stack.topics); err != nil {
			session.stop()
			return opErr("start", "failed to ensure cluster subscription", err)
		}
	}
	session.Info(fmt.Sprintf("session started: mode=%s", cfg.Mode))
	return nil
}

// Stop ends owner's session and tears down the cluster's WebSocket if
// no session remains running.
func (e *Engine) Stop(cluster common.Cluster, owner string) error {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return err
	}
	session := stack.runtime.sessionFor(owner)
	session.stop()
	session.Info("session stopped")
	stack.runtime.TeardownIfIdle()
	return nil
}

// Materialize builds and installs the unsigned transaction list for
// owner's current pendingAction.
func (e *Engine) Materialize(ctx context.Context, cluster common.Cluster, owner string) error {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return err
	}
	session := stack.runtime.sessionFor(owner)
	return stack.materializer.Materialize(ctx, session)
}

// Prepare accepts the Edge's signed transactions for owner's
// materialized pendingAction and turns them into a PreparedBundle.
// firstSignatures and tipAccountPubkey are both derived by the caller
// from the signed bytes before they ever reach the core.
func (e *Engine) Prepare(ctx context.Context, cluster common.Cluster, owner string, signedTxsBase58 []string, firstSignatures []string, tipAccountPubkey string) (*PreparedBundle, error) {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return nil, err
	}
	session := stack.runtime.sessionFor(owner)
	snap := session.Snapshot()
	return stack.bundles.Prepare(ctx, session, snap, signedTxsBase58, firstSignatures, tipAccountPubkey)
}

// Submit sends a previously prepared bundle to the block engine.
func (e *Engine) Submit(ctx context.Context, cluster common.Cluster, owner, localID string) error {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return err
	}
	session := stack.runtime.sessionFor(owner)
	return stack.bundles.Submit(ctx, session, localID)
}

// GetSessionView returns a read-only snapshot of owner's session
// state for the Edge to render.
func (e *Engine) GetSessionView(cluster common.Cluster, owner string) (View, error) {
	stack, err := e.stackFor(cluster)
	if err != nil {
		return View{}, err
	}
	session := stack.runtime.sessionFor(owner)
	return session.View(), nil
}
