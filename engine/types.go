// Package engine implements the opportunity-detection and per-session
// action pipeline (C1-C7): a WebSocket log-stream multiplexer, a
// per-signal router, an auto-discovery filter, a per-wallet session
// state machine, an action materializer, a bundle lifecycle, and a
// volume timer. It never handles private keys: every transaction it
// produces is unsigned, and every transaction it submits arrived
// already signed from the caller.
package engine

import (
	"sync"
	"time"

	"github.com/solbot/core/common"
	"github.com/solbot/core/metrics"
)

// Mode selects the session's opportunity strategy.
type Mode string

const (
	ModeSnipe  Mode = "snipe"
	ModeVolume Mode = "volume"
)

// PumpFunPhase distinguishes pre-migration (bonding curve) from
// post-migration (AMM) venues for snipe mode.
type PumpFunPhase string

const (
	PhasePre  PumpFunPhase = "pre"
	PhasePost PumpFunPhase = "post"
)

// SnipeTargetMode selects how snipe-mode candidates are chosen.
type SnipeTargetMode string

const (
	TargetList SnipeTargetMode = "list"
	TargetAuto SnipeTargetMode = "auto"
)

// SignalSource identifies which venue/topic produced a signal.
type SignalSource string

const (
	SourceRaydium     SignalSource = "raydium"
	SourcePumpfun     SignalSource = "pumpfun"
	SourceVolumeTimer SignalSource = "volumeTimer"
)

// AutoSnipeConfig holds the auto-discovery-filter parameters.
type AutoSnipeConfig struct {
	WindowSec                     int64
	MinSignalsInWindow             int
	MinUniqueFeePayersInWindow     int
	MaxTxAgeSec                    int64
	RequireMintAuthorityDisabled   bool
	RequireFreezeAuthorityDisabled bool
	AllowToken2022                 bool
	MaxTop1HolderPct               float64
	MaxTop10HolderPct              float64
}

// VolumeConfig holds the volume-timer parameters.
type VolumeConfig struct {
	Enabled     bool
	IntervalSec int
	TokenMint   string
	SlippageBps int
	Roundtrip   bool
}

// BotConfig is an immutable snapshot installed at Session.Start and
// replaced wholesale (never mutated) on restart.
type BotConfig struct {
	Cluster         common.Cluster
	Mode            Mode
	PumpFunPhase    PumpFunPhase
	SnipeTargetMode SnipeTargetMode
	AutoSnipe       AutoSnipeConfig
	MevEnabled      bool
	BuyAmountSol    float64
	Volume          VolumeConfig
	SnipeList       []string

	// Pass-through numeric params the core does not interpret itself
	// (liquidity/TP/SL/autosell thresholds belong to the Edge's own
	// position-management surface) but which travel with the config
	// snapshot so a restart atomically replaces them along with
	// everything else.
	LiquidityParams map[string]float64
	TakeProfitPct   float64
	StopLossPct     float64
	AutoSellEnabled bool
}

// PendingActionKind is a discriminant. Only one kind exists today
// (SIGN_AND_BUNDLE), but it is kept explicit rather than inferred from
// field presence so a future second kind doesn't have to be
// reverse-engineered from which fields happen to be set.
type PendingActionKind string

const PendingActionSignAndBundle PendingActionKind = "SIGN_AND_BUNDLE"

// PendingAction is the at-most-one action a session is waiting to have
// signed and bundled; setting it is idempotent under the same epoch.
type PendingAction struct {
	Kind              PendingActionKind
	Reason            string
	UnsignedTxsBase64 []string
	TriggerSignature  string
	Source            SignalSource
	TargetMint        string // empty when not applicable
	NeedsUnsignedTxs  bool
}

// PreparedBundle is the ordered, signed transaction set accepted from
// the client for a single local bundle id.
type PreparedBundle struct {
	LocalID           string
	SignedTxsBase58   []string
	CreatedAtMs       int64
}

// BundleState is the lifecycle state of a BundleStatus record.
type BundleState string

const (
	BundlePrepared  BundleState = "prepared"
	BundleSubmitted BundleState = "submitted"
	BundleConfirmed BundleState = "confirmed"
	BundleDropped   BundleState = "dropped"
	BundleError     BundleState = "error"
)

// BundleStatus tracks one bundle through its lifecycle.
type BundleStatus struct {
	LocalID          string
	RemoteID         string // optional; block-engine assigned
	State            BundleState
	CreatedAtMs      int64
	LastUpdateMs     int64
	RemoteStatus     interface{} // opaque, verbatim from getBundleStatuses
	Error            string
	FirstSignatures  []string // one per transaction, in order
}

// MomentumEntry is the per-mint, per-session C3 tracking state.
type MomentumEntry struct {
	FirstSeenMs      int64
	CreatedAtMs      int64
	Count            int
	UniqueFeePayers  map[string]struct{}
	Safety           *SafetyResult // nil until computed once per window
}

// SafetyResult is the memoized outcome of the mint safety check.
type SafetyResult struct {
	OK        bool
	Reason    string
	Top1Pct   float64
	Top10Pct  float64
}

// AutoStats are the monotonically non-decreasing C3 funnel counters
// plus a free-form reject-reason breakdown. Each bump also mirrors the
// count to the package-level metrics.AutoStats CounterVec, labeled by
// cluster/owner/stage so a multi-tenant deployment can break funnel
// drop-off down per wallet.
type AutoStats struct {
	mu            sync.Mutex
	cluster       common.Cluster
	owner         string
	Signals       int64
	TxOk          int64
	MintInferred  int64
	SafetyOk      int64
	Triggered     int64
	Rejects       map[string]int64
}

func newAutoStats(cluster common.Cluster, owner string) *AutoStats {
	return &AutoStats{cluster: cluster, owner: owner, Rejects: make(map[string]int64)}
}

func (a *AutoStats) bumpStage(stage string) {
	metrics.AutoStats.WithLabelValues(string(a.cluster), a.owner, stage).Inc()
}

func (a *AutoStats) bumpSignals()      { a.mu.Lock(); a.Signals++; a.mu.Unlock(); a.bumpStage("signals") }
func (a *AutoStats) bumpTxOk()         { a.mu.Lock(); a.TxOk++; a.mu.Unlock(); a.bumpStage("tx_ok") }
func (a *AutoStats) bumpMintInferred() { a.mu.Lock(); a.MintInferred++; a.mu.Unlock(); a.bumpStage("mint_inferred") }
func (a *AutoStats) bumpSafetyOk()     { a.mu.Lock(); a.SafetyOk++; a.mu.Unlock(); a.bumpStage("safety_ok") }
func (a *AutoStats) bumpTriggered()    { a.mu.Lock(); a.Triggered++; a.mu.Unlock(); a.bumpStage("triggered") }
func (a *AutoStats) bumpReject(reason string) {
	a.mu.Lock()
	a.Rejects[reason]++
	a.mu.Unlock()
	a.bumpStage("reject_" + reason)
}

// Snapshot returns a copy safe to log or export, without racing future
// mutations.
func (a *AutoStats) Snapshot() AutoStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	rejects := make(map[string]int64, len(a.Rejects))
	for k, v := range a.Rejects {
		rejects[k] = v
	}
	return AutoStats{
		Signals:      a.Signals,
		TxOk:         a.TxOk,
		MintInferred: a.MintInferred,
		SafetyOk:     a.SafetyOk,
		Triggered:    a.Triggered,
		Rejects:      rejects,
	}
}

const (
	logRingCap = 500
)

func nowMs() int64 { return time.Now().UnixMilli() }
