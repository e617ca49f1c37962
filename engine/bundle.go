package engine

import (
	"context"
	"fmt"

	uuid "github.com/satori/go.uuid"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
)

// BundleManager is C6: turns a session's materialized pendingAction
// into a prepared, then submitted, MEV bundle, once the Edge returns
// it signed. It never sees a private key; signedTxsBase58 arrives
// already signed.
type BundleManager struct {
	cluster common.Cluster
	be      BlockEngineClient
	tips    *TipAccountCache
	logger  log.Logger
}

func NewBundleManager(cluster common.Cluster, be BlockEngineClient, tips *TipAccountCache) *BundleManager {
	return &BundleManager{
		cluster: cluster,
		be:      be,
		tips:    tips,
		logger:  log.NewModuleLogger(log.Bundle).With("cluster", string(cluster)),
	}
}

const maxBundleSize = 5

// Prepare consumes the session's materialized pendingAction and turns
// it into a PreparedBundle. Mainnet-only: a devnet session has no
// block-engine submission path at all, so preparing a bundle there is
// rejected outright rather than silently accepted and left to rot.
//
// firstSignatures holds each signed transaction's own first signature,
// in order, as the per-transaction identifier; tipAccountPubkey is
// whichever account the last transaction actually pays, both supplied
// by the caller since it holds the signed bytes and decoded them
// locally before Prepare ever sees them. A tip account that is absent
// or unrecognized is a warning, not a rejection: the bundle may still
// be accepted without an explicit tip under network congestion.
func (b *BundleManager) Prepare(ctx context.Context, session *Session, snap Snapshot, signedTxsBase58 []string, firstSignatures []string, tipAccountPubkey string) (*PreparedBundle, error) {
	if snap.Config == nil || snap.Config.Cluster == common.Devnet {
		return nil, ErrMainnetOnly
	}

	pa := session.PendingAction()
	if pa == nil {
		return nil, opErr("prepare", "no pending action", nil)
	}
	if pa.NeedsUnsignedTxs {
		return nil, opErr("prepare", "pending action has not been materialized yet", nil)
	}
	if len(signedTxsBase58) == 0 || len(signedTxsBase58) > maxBundleSize {
		return nil, opErr("prepare", fmt.Sprintf("bundle must contain 1-%d transactions, got %d", maxBundleSize, len(signedTxsBase58)), nil)
	}
	if len(signedTxsBase58) != len(pa.UnsignedTxsBase64) {
		return nil, opErr("prepare", fmt.Sprintf("expected %d signed transactions, got %d", len(pa.UnsignedTxsBase64), len(signedTxsBase58)), nil)
	}

	if snap.Config.MevEnabled {
		b.warnIfTipMissing(ctx, session, snap.Config.Cluster, tipAccountPubkey)
	}

	simResult, err := b.be.SimulateBundle(ctx, snap.Config.Cluster, signedTxsBase58)
	if err != nil {
		return nil, opErr("prepare", "bundle simulation failed", err)
	}

	bundle := &PreparedBundle{
		LocalID:         uuid.NewV4().String(),
		SignedTxsBase58: signedTxsBase58,
		CreatedAtMs:     nowMs(),
	}
	session.storePreparedBundle(bundle)
	session.updateBundleStatus(bundle.LocalID, func(st *BundleStatus) {
		st.FirstSignatures = firstSignatures
		st.RemoteStatus = simResult
	})
	session.ClearPendingAction()
	session.Info(fmt.Sprintf("bundle %s prepared (%d transactions)", bundle.LocalID, len(signedTxsBase58)))
	return bundle, nil
}

// warnIfTipMissing implements the non-fatal tip-last check: a lookup
// failure or an unrecognized destination both just log a warning.
func (b *BundleManager) warnIfTipMissing(ctx context.Context, session *Session, cluster common.Cluster, tipAccountPubkey string) {
	if tipAccountPubkey == "" {
		session.Warn("no tip detected: mev enabled but caller reported no tip account")
		return
	}
	known, err := b.tips.Contains(ctx, cluster, tipAccountPubkey)
	if err != nil {
		session.Warn(fmt.Sprintf("tip account lookup failed, continuing: %v", err))
		return
	}
	if !known {
		session.Warn(fmt.Sprintf("no tip detected: %s is not a known block-engine tip account", tipAccountPubkey))
	}
}

// Submit sends a previously prepared bundle to the block engine and
// polls its status exactly once. Idempotent: submitting an
// already-submitted bundle is a no-op.
func (b *BundleManager) Submit(ctx context.Context, session *Session, localID string) error {
	if b.cluster == common.Devnet {
		return ErrMainnetOnly
	}
	bundle, ok := session.getPreparedBundle(localID)
	if !ok {
		return opErr("submit", fmt.Sprintf("no prepared bundle %s", localID), nil)
	}
	status, ok := session.getBundleStatus(localID)
	if !ok {
		return opErr("submit", fmt.Sprintf("no status row for bundle %s", localID), nil)
	}
	if status.State != BundlePrepared {
		return nil
	}

	remote, err := b.be.SendBundle(ctx, b.cluster, bundle.SignedTxsBase58)
	if err != nil {
		session.updateBundleStatus(localID, func(st *BundleStatus) {
			st.State = BundleError
			st.Error = err.Error()
		})
		session.Error(fmt.Sprintf("bundle %s submission failed: %v", localID, err))
		return opErr("submit", "send bundle failed", err)
	}

	remoteID := ""
	if s, ok := remote.(string); ok {
		remoteID = s
	}
	session.updateBundleStatus(localID, func(st *BundleStatus) {
		st.State = BundleSubmitted
		st.RemoteID = remoteID
		st.RemoteStatus = remote
	})
	session.Info(fmt.Sprintf("bundle %s submitted", localID))

	b.pollOnce(ctx, session, localID, remoteID)
	return nil
}

// pollOnce makes a single best-effort getBundleStatuses round trip;
// errors are logged, not returned, since submission has already
// succeeded and the caller has nothing actionable to do with a polling
// failure.
func (b *BundleManager) pollOnce(ctx context.Context, session *Session, localID, remoteID string) {
	id := remoteID
	if id == "" {
		id = localID
	}
	statuses, err := b.be.GetBundleStatuses(ctx, b.cluster, []string{id})
	if err != nil {
		session.Warn(fmt.Sprintf("bundle %s status poll failed: %v", localID, err))
		return
	}
	session.updateBundleStatus(localID, func(st *BundleStatus) {
		st.RemoteStatus = statuses
	})
}
