package engine

import (
	"sync"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
	"github.com/solbot/core/metrics"
)

// Session is per-wallet state, the core unit C4 manages. It never
// holds a pointer back to its owning ClusterRuntime — only a
// back-index (the cluster tag); all cross-component calls go through
// the Engine facade instead.
type Session struct {
	mu sync.Mutex

	owner   string
	cluster common.Cluster

	running bool
	config  *BotConfig
	epoch   uint64

	logs *common.LogRing

	bundles         map[string]*BundleStatus
	preparedBundles map[string]*PreparedBundle

	pendingAction *PendingAction

	autoMintStats map[string]*MomentumEntry
	autoStats     *AutoStats

	lastVolumeActionMs int64
	lastVolumeRoute    string

	logger log.Logger
}

func newSession(owner string, cluster common.Cluster) *Session {
	return &Session{
		owner:           owner,
		cluster:         cluster,
		logs:            common.NewLogRing(logRingCap),
		bundles:         make(map[string]*BundleStatus),
		preparedBundles: make(map[string]*PreparedBundle),
		autoMintStats:   make(map[string]*MomentumEntry),
		autoStats:       newAutoStats(cluster, owner),
		logger:          log.NewModuleLogger(log.Session).With("owner", owner, "cluster", string(cluster)),
	}
}

// Snapshot is the (config, epoch) pair every asynchronous continuation
// must capture before doing network I/O, and re-check before any
// observable write.
type Snapshot struct {
	Running bool
	Config  *BotConfig
	Epoch   uint64
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Running: s.running, Config: s.config, Epoch: s.epoch}
}

// StillValid reports whether a previously captured snapshot is still
// current — the sole cancellation mechanism for in-flight async work.
func (s *Session) StillValid(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running == snap.Running && s.config == snap.Config && s.epoch == snap.Epoch && s.running
}

// start installs config, clears transient state and bumps epoch.
// Returns the new epoch. Caller (Engine.Start) is responsible for the
// C1/C7 side effects (subscription, volume timer).
func (s *Session) start(cfg *BotConfig) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.config = cfg
	s.pendingAction = nil
	s.autoMintStats = make(map[string]*MomentumEntry)
	s.autoStats = newAutoStats(s.cluster, s.owner)
	s.lastVolumeActionMs = 0
	s.lastVolumeRoute = ""
	s.epoch++
	return s.epoch
}

// stop clears config/pendingAction and bumps epoch. Returns the mode
// that was running (so the caller knows whether to stop a volume
// timer) and the new epoch.
func (s *Session) stop() (wasMode Mode, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config != nil {
		wasMode = s.config.Mode
	}
	s.running = false
	s.config = nil
	s.pendingAction = nil
	s.epoch++
	return wasMode, s.epoch
}

func (s *Session) appendLog(level, msg string) {
	s.logs.Append(common.LogLine{TimeMs: nowMs(), Level: level, Message: msg})
}

func (s *Session) Info(msg string)  { s.appendLog("info", msg); s.logger.Info(msg) }
func (s *Session) Warn(msg string)  { s.appendLog("warn", msg); s.logger.Warn(msg) }
func (s *Session) Error(msg string) { s.appendLog("error", msg); s.logger.Error(msg) }

// TryArmPendingAction sets pendingAction iff running, no pendingAction
// currently set, and epoch still matches snap. The "already armed"
// check and the write must be serialized per session — this method is
// the serialization point, holding s.mu for both. Returns false
// (no-op) on any mismatch.
func (s *Session) TryArmPendingAction(snap Snapshot, pa *PendingAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.config != snap.Config || s.epoch != snap.Epoch {
		return false
	}
	if s.pendingAction != nil {
		return false
	}
	s.pendingAction = pa
	metrics.PendingActions.WithLabelValues(string(s.cluster), string(pa.Source)).Set(1)
	return true
}

// PendingAction returns the current pending action, or nil.
func (s *Session) PendingAction() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAction
}

// ClearPendingAction unconditionally clears the slot (used by Prepare,
// and by materialization/volume-timer error paths).
func (s *Session) ClearPendingAction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAction != nil {
		metrics.PendingActions.WithLabelValues(string(s.cluster), string(s.pendingAction.Source)).Set(0)
	}
	s.pendingAction = nil
}

// SetUnsignedTxs fills in a materialized pendingAction, idempotently:
// on success unsignedTxsBase64 is populated and needsUnsignedTxs is
// cleared. No-ops if the slot has since been cleared or replaced.
func (s *Session) SetUnsignedTxs(expect *PendingAction, txs []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAction != expect {
		return false
	}
	s.pendingAction.UnsignedTxsBase64 = txs
	s.pendingAction.NeedsUnsignedTxs = false
	return true
}

func (s *Session) momentum(mint string) (*MomentumEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.autoMintStats[mint]
	return e, ok
}

func (s *Session) setMomentum(mint string, e *MomentumEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoMintStats[mint] = e
}

func (s *Session) recordVolumeAction(nowMs int64, route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVolumeActionMs = nowMs
	s.lastVolumeRoute = route
}

func (s *Session) volumeTiming() (lastActionMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVolumeActionMs
}

func (s *Session) bumpLastVolumeActionOnly(nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVolumeActionMs = nowMs
}

// storePreparedBundle records a freshly prepared bundle and seeds its
// status row. Callers must have already cleared the pendingAction that
// produced it.
func (s *Session) storePreparedBundle(b *PreparedBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preparedBundles[b.LocalID] = b
	s.bundles[b.LocalID] = &BundleStatus{
		LocalID:      b.LocalID,
		State:        BundlePrepared,
		CreatedAtMs:  b.CreatedAtMs,
		LastUpdateMs: b.CreatedAtMs,
	}
}

func (s *Session) getPreparedBundle(localID string) (*PreparedBundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.preparedBundles[localID]
	return b, ok
}

func (s *Session) getBundleStatus(localID string) (*BundleStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.bundles[localID]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

func (s *Session) updateBundleStatus(localID string, mutate func(*BundleStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.bundles[localID]
	if !ok {
		return
	}
	mutate(st)
	st.LastUpdateMs = nowMs()
	metrics.BundleTransitions.WithLabelValues(string(s.cluster), string(st.State)).Inc()
}

// View is the read model exposed to the Edge via GetSessionView.
type View struct {
	Running       bool
	PendingAction *PendingAction
	Bundles       map[string]*BundleStatus
	SessionLogs   []common.LogLine
	AutoStats     AutoStats
}

func (s *Session) View() View {
	s.mu.Lock()
	bundles := make(map[string]*BundleStatus, len(s.bundles))
	for k, v := range s.bundles {
		cp := *v
		bundles[k] = &cp
	}
	pa := s.pendingAction
	running := s.running
	s.mu.Unlock()

	return View{
		Running:       running,
		PendingAction: pa,
		Bundles:       bundles,
		SessionLogs:   s.logs.Snapshot(),
		AutoStats:     s.autoStats.Snapshot(),
	}
}
