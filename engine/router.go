package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	set "gopkg.in/fatih/set.v0"

	"github.com/solbot/core/log"
)

const (
	heartbeatInterval    = 15 * time.Second
	listWarnInterval     = time.Minute
)

// Router is C2: for each deduped notification, it iterates the
// cluster's sessions and applies the mode x phase x target-mode
// filter table.
type Router struct {
	rpc      ClusterRpcClient
	throttle *RPCThrottle
	auto     *AutoDiscoveryFilter
	logger   log.Logger

	heartbeatMu   sync.Mutex
	heartbeatLast map[string]time.Time // "owner|src"

	listWarnMu   sync.Mutex
	listWarnLast map[string]time.Time // owner
}

func NewRouter(rpc ClusterRpcClient, throttle *RPCThrottle, auto *AutoDiscoveryFilter) *Router {
	return &Router{
		rpc:           rpc,
		throttle:      throttle,
		auto:          auto,
		logger:        log.NewModuleLogger(log.Router),
		heartbeatLast: make(map[string]time.Time),
		listWarnLast:  make(map[string]time.Time),
	}
}

func topicToSource(t TopicKey) SignalSource {
	switch t {
	case TopicRaydium:
		return SourceRaydium
	case TopicPumpfun:
		return SourcePumpfun
	}
	return ""
}

// routingAccepts is the topic-to-mode routing table.
func routingAccepts(cfg *BotConfig, src SignalSource) bool {
	switch cfg.Mode {
	case ModeSnipe:
		if cfg.PumpFunPhase == PhasePre {
			return src == SourcePumpfun
		}
		return src == SourceRaydium
	case ModeVolume:
		return src == SourceRaydium
	}
	return false
}

// Route processes one deduped notification against every session in
// rt. It must be called from the per-cluster dispatcher goroutine so
// that per-session ordering guarantees hold.
func (r *Router) Route(ctx context.Context, rt *ClusterRuntime, notif routedNotification) {
	src := topicToSource(notif.Topic)
	if src == "" {
		return
	}

	for _, session := range rt.allSessions() {
		snap := session.Snapshot()
		if !snap.Running || snap.Config == nil {
			continue
		}
		if session.PendingAction() != nil {
			continue
		}
		if !routingAccepts(snap.Config, src) {
			continue
		}

		r.heartbeat(session, src)
		r.dispatchTarget(ctx, session, snap, notif, src)
	}
}

func (r *Router) heartbeat(session *Session, src SignalSource) {
	key := fmt.Sprintf("%s|%s", session.owner, src)
	now := time.Now()

	r.heartbeatMu.Lock()
	last, ok := r.heartbeatLast[key]
	due := !ok || now.Sub(last) >= heartbeatInterval
	if due {
		r.heartbeatLast[key] = now
	}
	r.heartbeatMu.Unlock()

	if !due {
		return
	}
	stats := session.autoStats.Snapshot()
	session.Info(fmt.Sprintf("heartbeat src=%s signals=%d txOk=%d mintInferred=%d safetyOk=%d triggered=%d",
		src, stats.Signals, stats.TxOk, stats.MintInferred, stats.SafetyOk, stats.Triggered))
}

func (r *Router) dispatchTarget(ctx context.Context, session *Session, snap Snapshot, notif routedNotification, src SignalSource) {
	cfg := snap.Config

	switch {
	case cfg.Mode == ModeVolume:
		// Volume is timer-driven; Router never arms volume actions.
		return

	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetList:
		r.handleListMode(ctx, session, snap, notif, src)

	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetAuto && cfg.PumpFunPhase == PhasePre && src == SourcePumpfun:
		r.auto.Process(ctx, session, snap, notif)

	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetAuto && cfg.PumpFunPhase == PhasePost:
		// Auto-discovery's inputs are pumpfun-only, so there is no
		// momentum/safety funnel defined for post-migration AMM pools.
		// Decision (recorded in DESIGN.md): treat every accepted
		// post-phase signal as an immediate arm with no targetMint
		// resolution, mirroring the generic on-acceptance-arm behavior
		// used elsewhere.
		r.arm(session, snap, notif, src, "")
	}
}

func (r *Router) handleListMode(ctx context.Context, session *Session, snap Snapshot, notif routedNotification, src SignalSource) {
	cfg := snap.Config
	if len(cfg.SnipeList) == 0 {
		r.warnEmptyList(session)
		return
	}

	var tx *TransactionMessage
	err := r.throttle.Do(ctx, func() error {
		var err error
		tx, err = r.rpc.GetTransaction(ctx, notif.Signature, CommitmentConfirmed)
		return err
	})
	if !session.StillValid(snap) {
		return
	}
	if err != nil || tx == nil {
		session.Warn(fmt.Sprintf("list-mode tx fetch failed for %s: %v", notif.Signature, err))
		return
	}

	wanted := set.New(set.ThreadSafe)
	for _, m := range cfg.SnipeList {
		wanted.Add(m)
	}

	var match string
	for _, key := range tx.StaticAccountKeys {
		if wanted.Has(key) {
			match = key
			break
		}
	}
	if match == "" {
		return
	}

	r.arm(session, snap, notif, src, match)
}

func (r *Router) warnEmptyList(session *Session) {
	r.listWarnMu.Lock()
	last, ok := r.listWarnLast[session.owner]
	now := time.Now()
	due := !ok || now.Sub(last) >= listWarnInterval
	if due {
		r.listWarnLast[session.owner] = now
	}
	r.listWarnMu.Unlock()

	if due {
		session.Warn("snipe list is empty; dropping signal")
	}
}

// arm sets the session's pendingAction for a non-auto-discovery
// trigger.
func (r *Router) arm(session *Session, snap Snapshot, notif routedNotification, src SignalSource, targetMint string) {
	pa := &PendingAction{
		Kind:             PendingActionSignAndBundle,
		Reason:           fmt.Sprintf("signal %s matched via %s", notif.Signature, src),
		TriggerSignature: notif.Signature,
		Source:           src,
		TargetMint:       targetMint,
		NeedsUnsignedTxs: true,
	}
	if session.TryArmPendingAction(snap, pa) {
		session.Info(fmt.Sprintf("armed pending action from %s (mint=%s)", notif.Signature, targetMint))
	}
}
