package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solbot/core/common"
)

func newMainnetSessionWithMaterializedAction(t *testing.T, mevEnabled bool, numTxs int) (*Session, Snapshot) {
	t.Helper()
	session := newSession("owner1", common.Mainnet)
	cfg := &BotConfig{Cluster: common.Mainnet, Mode: ModeSnipe, MevEnabled: mevEnabled}
	session.start(cfg)

	unsigned := make([]string, numTxs)
	for i := range unsigned {
		unsigned[i] = "unsigned-tx"
	}
	pa := &PendingAction{Kind: PendingActionSignAndBundle, NeedsUnsignedTxs: true}
	require.True(t, session.TryArmPendingAction(session.Snapshot(), pa))
	require.True(t, session.SetUnsignedTxs(pa, unsigned))

	return session, session.Snapshot()
}

func TestBundlePrepareDevnetRejected(t *testing.T) {
	session := newSession("owner1", common.Devnet)
	cfg := &BotConfig{Cluster: common.Devnet, Mode: ModeSnipe}
	session.start(cfg)
	snap := session.Snapshot()

	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Devnet, be, NewTipAccountCache(be))

	_, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "")
	require.ErrorIs(t, err, ErrMainnetOnly)
}

func TestBundlePrepareSucceedsAndStoresFirstSignatures(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, false, 2)
	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	bundle, err := mgr.Prepare(context.Background(), session, snap, []string{"tx1", "tx2"}, []string{"sig1", "sig2"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, bundle.LocalID)

	status, ok := session.getBundleStatus(bundle.LocalID)
	require.True(t, ok)
	require.Equal(t, BundlePrepared, status.State)
	require.Equal(t, []string{"sig1", "sig2"}, status.FirstSignatures)
}

func TestBundlePrepareRejectsOverSizedBundle(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, false, 6)
	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	txs := make([]string, 6)
	sigs := make([]string, 6)
	for i := range txs {
		txs[i] = "tx"
		sigs[i] = "sig"
	}

	_, err := mgr.Prepare(context.Background(), session, snap, txs, sigs, "")
	require.Error(t, err)
}

func TestBundlePrepareMevMissingTipIsWarningNotRejection(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, true, 1)
	be := newFakeBlockEngine()
	be.tipAccounts = []string{"knownTip"}
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	bundle, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "")
	require.NoError(t, err)
	require.NotNil(t, bundle)
}

func TestBundlePrepareMevUnknownTipIsWarningNotRejection(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, true, 1)
	be := newFakeBlockEngine()
	be.tipAccounts = []string{"knownTip"}
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	bundle, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "unknownTip")
	require.NoError(t, err)
	require.NotNil(t, bundle)
}

func TestBundlePrepareSimulationFailureRejected(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, false, 1)
	be := newFakeBlockEngine()
	be.simulateErr = errSimulationFailed
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	_, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "")
	require.Error(t, err)
}

func TestBundleSubmitDevnetRejected(t *testing.T) {
	session := newSession("owner1", common.Devnet)
	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Devnet, be, NewTipAccountCache(be))

	err := mgr.Submit(context.Background(), session, "some-local-id")
	require.ErrorIs(t, err, ErrMainnetOnly)
}

func TestBundleSubmitIsIdempotent(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, false, 1)
	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	bundle, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "")
	require.NoError(t, err)

	require.NoError(t, mgr.Submit(context.Background(), session, bundle.LocalID))
	status, _ := session.getBundleStatus(bundle.LocalID)
	require.Equal(t, BundleSubmitted, status.State)

	// Second submit is a no-op, not an error or re-send.
	require.NoError(t, mgr.Submit(context.Background(), session, bundle.LocalID))
}

func TestBundleSubmitFailureMarksError(t *testing.T) {
	session, snap := newMainnetSessionWithMaterializedAction(t, false, 1)
	be := newFakeBlockEngine()
	mgr := NewBundleManager(common.Mainnet, be, NewTipAccountCache(be))

	bundle, err := mgr.Prepare(context.Background(), session, snap, []string{"tx"}, []string{"sig"}, "")
	require.NoError(t, err)

	be.sendErr = errSendFailed
	require.Error(t, mgr.Submit(context.Background(), session, bundle.LocalID))

	status, _ := session.getBundleStatus(bundle.LocalID)
	require.Equal(t, BundleError, status.State)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

const (
	errSimulationFailed = simpleError("simulation failed")
	errSendFailed       = simpleError("send failed")
)
