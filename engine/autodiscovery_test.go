package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solbot/core/common"
)

func autoSnipeSession(cfg AutoSnipeConfig) (*Session, Snapshot) {
	s := newSession("owner1", common.Mainnet)
	s.start(&BotConfig{
		Cluster:         common.Mainnet,
		Mode:            ModeSnipe,
		SnipeTargetMode: TargetAuto,
		PumpFunPhase:    PhasePre,
		AutoSnipe:       cfg,
	})
	return s, s.Snapshot()
}

func defaultAutoCfg() AutoSnipeConfig {
	cfg := baseAutoSnipeCfg()
	cfg.WindowSec = 60
	cfg.MaxTxAgeSec = 120
	cfg.MinSignalsInWindow = 1
	cfg.MinUniqueFeePayersInWindow = 1
	return cfg
}

func TestProcessRejectsNoMintOnFetchFailure(t *testing.T) {
	rpc := newFakeRpc()
	rpc.getTransactionErr = errBuildFailed
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(defaultAutoCfg())

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["noMint"])
}

func TestProcessRejectsNotNewWhenNoMomentumAndNotACreate(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
		PreTokenBalances:  []TokenBalance{{Mint: "mint1"}}, // already present pre-tx: not a fresh mint
	}
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(defaultAutoCfg())

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"some other log"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["notNew"])
}

func TestProcessArmsOnCreateSignalMeetingAllGates(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(defaultAutoCfg())

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})

	pa := s.PendingAction()
	require.NotNil(t, pa)
	require.Equal(t, "mint1", pa.TargetMint)
	require.Equal(t, SourcePumpfun, pa.Source)
	require.True(t, pa.NeedsUnsignedTxs)
}

func TestProcessRejectsMomentumWhenBelowMinSignals(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	cfg := defaultAutoCfg()
	cfg.MinSignalsInWindow = 2
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(cfg)

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["momentum"])
}

func TestProcessRejectsUniquePayersWhenBelowMinimum(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.txs["sig2"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"}, // same payer as sig1
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	cfg := defaultAutoCfg()
	cfg.MinSignalsInWindow = 2
	cfg.MinUniqueFeePayersInWindow = 2
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(cfg)

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})
	require.Nil(t, s.PendingAction())
	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig2", Logs: []string{"some log"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["uniquePayers"])
}

func TestProcessRejectsWhenSafetyCheckFails(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(1, 1000, 6, 1, 0, nil)} // mint authority enabled
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(defaultAutoCfg())

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["mint authority still enabled"])
}

func TestProcessSafetyCheckIsMemoizedPerMint(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.txs["sig2"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer2"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	cfg := defaultAutoCfg()
	cfg.MinSignalsInWindow = 2
	cfg.MinUniqueFeePayersInWindow = 2
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(cfg)

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"instruction: create"}})
	// mutate the backing account after the first pass: memoized safety
	// result must still be reused, so this second pass still arms.
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(1, 1000, 6, 1, 0, nil)}
	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig2", Logs: []string{"some log"}})

	pa := s.PendingAction()
	require.NotNil(t, pa)
	require.Equal(t, "mint1", pa.TargetMint)
}

func TestProcessRejectsTooOldWhenWindowExceedsMaxAge(t *testing.T) {
	rpc := newFakeRpc()
	rpc.txs["sig1"] = &TransactionMessage{
		StaticAccountKeys: []string{"payer1"},
		PostTokenBalances: []TokenBalance{{Mint: "mint1"}},
	}
	rpc.accounts["mint1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	cfg := defaultAutoCfg()
	cfg.MaxTxAgeSec = 0
	f := NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
	s, snap := autoSnipeSession(cfg)
	// seed a pre-existing momentum entry whose CreatedAtMs is already in
	// the past relative to nowMs(), so ageSec > MaxTxAgeSec immediately.
	s.setMomentum("mint1", &MomentumEntry{FirstSeenMs: nowMs(), CreatedAtMs: nowMs() - 5000, UniqueFeePayers: make(map[string]struct{})})

	f.Process(context.Background(), s, snap, routedNotification{Signature: "sig1", Logs: []string{"some log"}})

	require.Nil(t, s.PendingAction())
	require.Equal(t, int64(1), s.autoStats.Snapshot().Rejects["tooOld"])
}
