package engine

import (
	"context"
	"fmt"
)

// runSafetyCheck implements the mint safety-check algorithm.
// Memoization (once per mint per session window) is the caller's
// responsibility (autodiscovery.go); this function is a pure RPC
// round-trip given a mint and the session's auto-snipe config.
func (f *AutoDiscoveryFilter) runSafetyCheck(ctx context.Context, mint string, cfg AutoSnipeConfig) (*SafetyResult, error) {
	var mintAccount *AccountInfo
	err := f.throttle.Do(ctx, func() error {
		var err error
		mintAccount, err = f.rpc.GetAccountInfo(ctx, mint, CommitmentConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}
	if mintAccount == nil {
		return &SafetyResult{OK: false, Reason: "mint account not found"}, nil
	}

	extended := isExtendedTokenProgram(mintAccount.Owner)
	if extended && !cfg.AllowToken2022 {
		return &SafetyResult{OK: false, Reason: "token-2022 not allowed"}, nil
	}

	if extended {
		for _, typ := range parseExtensionTLV(mintAccount.Data) {
			if name, blocked := blockedExtensionTypes[typ]; blocked {
				return &SafetyResult{OK: false, Reason: fmt.Sprintf("token-2022 extension not allowed: %s", name)}, nil
			}
		}
	}

	layout, err := parseMintLayout(mintAccount.Data)
	if err != nil {
		return &SafetyResult{OK: false, Reason: "mint not initialized"}, nil
	}
	if !layout.IsInitialized {
		return &SafetyResult{OK: false, Reason: "mint not initialized"}, nil
	}

	if cfg.RequireMintAuthorityDisabled && layout.MintAuthorityOption != 0 {
		return &SafetyResult{OK: false, Reason: "mint authority still enabled"}, nil
	}
	if cfg.RequireFreezeAuthorityDisabled && layout.FreezeAuthorityOption != 0 {
		return &SafetyResult{OK: false, Reason: "freeze authority still enabled"}, nil
	}

	var supply *TokenSupply
	err = f.throttle.Do(ctx, func() error {
		var err error
		supply, err = f.rpc.GetTokenSupply(ctx, mint)
		return err
	})
	if err != nil {
		return nil, err
	}
	if supply == nil || supply.Amount == 0 {
		return &SafetyResult{OK: false, Reason: "zero supply"}, nil
	}

	var holders []TokenAccountAmount
	err = f.throttle.Do(ctx, func() error {
		var err error
		holders, err = f.rpc.GetTokenLargestAccounts(ctx, mint)
		return err
	})
	if err != nil {
		return nil, err
	}

	var top1, top10Sum uint64
	nonZero := 0
	for i, h := range holders {
		if i >= 20 {
			break
		}
		if h.Amount > 0 {
			nonZero++
		}
		if i == 0 {
			top1 = h.Amount
		}
		if i < 10 {
			top10Sum += h.Amount
		}
	}

	total := float64(supply.Amount)
	top1Pct := float64(top1) * 100 / total
	top10Pct := float64(top10Sum) * 100 / total

	// Immediately post-launch distribution is trivially concentrated;
	// caps would falsely reject every candidate at t=0, so only
	// enforce once there are enough holders to be meaningful.
	if nonZero >= 5 {
		if top1Pct > cfg.MaxTop1HolderPct {
			return &SafetyResult{OK: false, Reason: "top1 too high", Top1Pct: top1Pct, Top10Pct: top10Pct}, nil
		}
		if top10Pct > cfg.MaxTop10HolderPct {
			return &SafetyResult{OK: false, Reason: "top10 too high", Top1Pct: top1Pct, Top10Pct: top10Pct}, nil
		}
	}

	return &SafetyResult{OK: true, Top1Pct: top1Pct, Top10Pct: top10Pct}, nil
}
