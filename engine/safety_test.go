package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseAutoSnipeCfg() AutoSnipeConfig {
	return AutoSnipeConfig{
		RequireMintAuthorityDisabled:   true,
		RequireFreezeAuthorityDisabled: true,
		AllowToken2022:                 false,
		MaxTop1HolderPct:               20,
		MaxTop10HolderPct:              50,
	}
}

func newSafetyFilter(rpc *fakeRpc) *AutoDiscoveryFilter {
	return NewAutoDiscoveryFilter(rpc, NewRPCThrottle(4))
}

func TestSafetyCheckMintAccountNotFound(t *testing.T) {
	rpc := newFakeRpc()
	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "missingMint", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "mint account not found", res.Reason)
}

func TestSafetyCheckRejectsEnabledMintAuthority(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{
		Owner: TokenProgramClassic,
		Data:  buildMintAccount(1, 1000, 6, 1, 0, nil), // authority option=1 (enabled)
	}
	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "mint authority still enabled", res.Reason)
}

func TestSafetyCheckRejectsToken2022WhenNotAllowed(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{
		Owner: TokenProgramExtended,
		Data:  buildMintAccount(0, 1000, 6, 1, 0, nil),
	}
	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "token-2022 not allowed", res.Reason)
}

func TestSafetyCheckRejectsBlockedExtension(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{
		Owner: TokenProgramExtended,
		Data:  buildMintAccount(0, 1000, 6, 1, 0, tlvEntry(1 /*transfer fee*/, 0, nil)),
	}
	cfg := baseAutoSnipeCfg()
	cfg.AllowToken2022 = true
	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", cfg)
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Reason, "transfer fee")
}

func TestSafetyCheckHolderConcentrationIgnoredBelowFiveHolders(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	rpc.supplies["m1"] = &TokenSupply{Amount: 1000, Decimals: 6}
	// Only 3 non-zero holders, one holding 90% — would fail top1 cap if enforced.
	rpc.holders["m1"] = []TokenAccountAmount{{Amount: 900}, {Amount: 50}, {Amount: 50}}

	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestSafetyCheckHolderConcentrationEnforcedAtFiveHolders(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	rpc.supplies["m1"] = &TokenSupply{Amount: 1000, Decimals: 6}
	rpc.holders["m1"] = []TokenAccountAmount{{Amount: 900}, {Amount: 25}, {Amount: 25}, {Amount: 25}, {Amount: 25}}

	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "top1 too high", res.Reason)
}

func TestSafetyCheckPassesWellDistributedMint(t *testing.T) {
	rpc := newFakeRpc()
	rpc.accounts["m1"] = &AccountInfo{Owner: TokenProgramClassic, Data: buildMintAccount(0, 1000, 6, 1, 0, nil)}
	rpc.supplies["m1"] = &TokenSupply{Amount: 1000, Decimals: 6}
	rpc.holders["m1"] = []TokenAccountAmount{{Amount: 10}, {Amount: 10}, {Amount: 10}, {Amount: 10}, {Amount: 10}}

	f := newSafetyFilter(rpc)
	res, err := f.runSafetyCheck(context.Background(), "m1", baseAutoSnipeCfg())
	require.NoError(t, err)
	require.True(t, res.OK)
}
