package engine

import (
	"context"
	"fmt"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
)

// WrappedSolMint is Solana's canonical wrapped-SOL mint, used as the
// input/output side of aggregator quotes in volume mode.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

const (
	snipeComputeUnitLimit = 1_000_000
	snipeComputeUnitPrice = 20_000
)

// Materializer is C5: synthesizes the concrete unsigned transaction
// list for a session's pendingAction, just in time.
type Materializer struct {
	cluster    common.Cluster
	rpc        ClusterRpcClient
	throttle   *RPCThrottle
	swap       SwapAdapter
	dex        DexAggregatorAdapter
	tradeLocal TradeLocalAdapter
	tips       *TipAccountCache

	logger log.Logger
}

func NewMaterializer(cluster common.Cluster, rpc ClusterRpcClient, throttle *RPCThrottle, swap SwapAdapter, dex DexAggregatorAdapter, tradeLocal TradeLocalAdapter, tips *TipAccountCache) *Materializer {
	return &Materializer{
		cluster:    cluster,
		rpc:        rpc,
		throttle:   throttle,
		swap:       swap,
		dex:        dex,
		tradeLocal: tradeLocal,
		tips:       tips,
		logger:     log.NewModuleLogger(log.Materializer).With("cluster", string(cluster)),
	}
}

// Materialize builds and installs the unsigned transaction list for
// session's current pendingAction, if it still needs one. Idempotent:
// a pendingAction that already has unsignedTxsBase64 populated is left
// untouched.
func (m *Materializer) Materialize(ctx context.Context, session *Session) error {
	pa := session.PendingAction()
	if pa == nil {
		return opErr("materialize", "no pending action", nil)
	}
	if !pa.NeedsUnsignedTxs {
		return nil
	}

	snap := session.Snapshot()
	if !snap.Running || snap.Config == nil {
		return opErr("materialize", "session not running", nil)
	}
	cfg := snap.Config

	var (
		txs []string
		err error
	)
	switch cfg.Mode {
	case ModeSnipe:
		txs, err = m.materializeSnipe(ctx, session, cfg, pa)
	case ModeVolume:
		txs, err = m.materializeVolume(ctx, session, cfg, pa)
	default:
		err = fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	if err != nil {
		// Clear pendingAction on failure, and for volume mode bump
		// lastVolumeActionMs to throttle immediate retries.
		session.ClearPendingAction()
		if cfg.Mode == ModeVolume {
			session.bumpLastVolumeActionOnly(nowMs())
		}
		session.Error(fmt.Sprintf("materialization failed: %v", err))
		return opErr("materialize", "materialization failed", err)
	}

	session.SetUnsignedTxs(pa, txs)
	return nil
}

func (m *Materializer) memoFor(pa *PendingAction, cfg *BotConfig) string {
	return fmt.Sprintf("mode=%s phase=%s source=%s signature=%s targetMint=%s",
		cfg.Mode, cfg.PumpFunPhase, pa.Source, pa.TriggerSignature, pa.TargetMint)
}

func (m *Materializer) materializeSnipe(ctx context.Context, session *Session, cfg *BotConfig, pa *PendingAction) ([]string, error) {
	var blockhash string
	err := m.throttle.Do(ctx, func() error {
		var err error
		blockhash, err = m.rpc.GetLatestBlockhash(ctx, CommitmentProcessed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	_ = blockhash // adapters embed the blockhash themselves; kept for adapters that want it via context in a real build.

	swapTx, err := m.swap.BuildUnsignedBuyTxBase64(ctx, SwapTxParams{
		Cluster:   cfg.Cluster,
		Owner:     session.owner,
		AmountSol: cfg.BuyAmountSol,
		Memo:      m.memoFor(pa, cfg),
		CuLimit:   snipeComputeUnitLimit,
		CuPrice:   snipeComputeUnitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("build swap tx: %w", err)
	}

	txs := []string{swapTx}
	if cfg.MevEnabled {
		tipTx, ok := m.maybeBuildTip(ctx, session, cfg)
		if ok {
			txs = append(txs, tipTx)
		}
	}
	return txs, nil
}

// maybeBuildTip implements the tip-building rules shared by snipe and
// volume mode. Any failure degrades to "no tip" with a warning rather
// than failing materialization outright.
func (m *Materializer) maybeBuildTip(ctx context.Context, session *Session, cfg *BotConfig) (string, bool) {
	if cfg.Cluster == common.Devnet {
		session.Warn("mev enabled but cluster is devnet; skipping tip")
		return "", false
	}

	tipAccount, err := m.tips.PickRandom(ctx, cfg.Cluster)
	if err != nil {
		session.Warn(fmt.Sprintf("no tip accounts available, skipping tip: %v", err))
		return "", false
	}

	tipTx, err := m.swap.BuildUnsignedTipTxBase64(ctx, TipTxParams{
		Cluster:     cfg.Cluster,
		Owner:       session.owner,
		TipAccount:  tipAccount,
		TipLamports: randomTipLamports(),
		Memo:        "solbot tip",
	})
	if err != nil {
		session.Warn(fmt.Sprintf("tip tx build failed, skipping tip: %v", err))
		return "", false
	}
	return tipTx, true
}

const lamportsPerSol = 1_000_000_000

func (m *Materializer) materializeVolume(ctx context.Context, session *Session, cfg *BotConfig, pa *PendingAction) ([]string, error) {
	if cfg.Volume.TokenMint == "" {
		return nil, fmt.Errorf("volume mode requires a tokenMint")
	}
	amountLamports := uint64(cfg.BuyAmountSol * lamportsPerSol)

	txs, route, primaryErr := m.volumePrimaryRoute(ctx, session, cfg, amountLamports)
	if primaryErr == nil {
		session.recordVolumeAction(nowMs(), route)
		return m.appendVolumeTip(ctx, session, cfg, txs)
	}

	txs, route, fallbackErr := m.volumeFallbackRoutes(ctx, session, cfg)
	if fallbackErr == nil {
		session.recordVolumeAction(nowMs(), route)
		return m.appendVolumeTip(ctx, session, cfg, txs)
	}

	return nil, fmt.Errorf("all volume routes failed: primary=%v; fallback=%v", primaryErr, fallbackErr)
}

func (m *Materializer) appendVolumeTip(ctx context.Context, session *Session, cfg *BotConfig, txs []string) ([]string, error) {
	if !cfg.MevEnabled {
		return txs, nil
	}
	tipTx, ok := m.maybeBuildTip(ctx, session, cfg)
	if ok {
		txs = append(txs, tipTx)
	}
	return txs, nil
}

// volumePrimaryRoute is volume-mode route 1: the DEX aggregator, with
// optional roundtrip.
func (m *Materializer) volumePrimaryRoute(ctx context.Context, session *Session, cfg *BotConfig, amountLamports uint64) ([]string, string, error) {
	quote, err := m.dex.Quote(ctx, DexQuoteParams{
		InputMint:   WrappedSolMint,
		OutputMint:  cfg.Volume.TokenMint,
		Amount:      amountLamports,
		SlippageBps: cfg.Volume.SlippageBps,
	})
	if err != nil {
		return nil, "", fmt.Errorf("aggregator quote: %w", err)
	}

	swapTx, err := m.dex.SwapTxBase64(ctx, DexSwapParams{Quote: quote, UserPublicKey: session.owner, WrapAndUnwrapSol: true})
	if err != nil {
		return nil, "", fmt.Errorf("aggregator swap build: %w", err)
	}

	txs := []string{swapTx}
	if cfg.Volume.Roundtrip {
		reverseQuote, err := m.dex.Quote(ctx, DexQuoteParams{
			InputMint:   cfg.Volume.TokenMint,
			OutputMint:  WrappedSolMint,
			Amount:      quote.OutAmount,
			SlippageBps: cfg.Volume.SlippageBps,
		})
		if err == nil {
			reverseTx, err := m.dex.SwapTxBase64(ctx, DexSwapParams{Quote: reverseQuote, UserPublicKey: session.owner, WrapAndUnwrapSol: true})
			if err == nil {
				txs = append(txs, reverseTx)
			} else {
				session.Warn(fmt.Sprintf("roundtrip reverse swap build failed, continuing buy-only: %v", err))
			}
		} else {
			session.Warn(fmt.Sprintf("roundtrip reverse quote failed, continuing buy-only: %v", err))
		}
	}
	return txs, "aggregator", nil
}

// volumeFallbackRoutes is volume-mode routes 2 and 3: the
// pre-migration launchpad builder, then the post-migration AMM
// builder, tried strictly in that order.
func (m *Materializer) volumeFallbackRoutes(ctx context.Context, session *Session, cfg *BotConfig) ([]string, string, error) {
	slippagePercent := float64((cfg.Volume.SlippageBps + 99) / 100)
	if slippagePercent < 1 {
		slippagePercent = 1
	}

	if cfg.Volume.Roundtrip {
		session.Warn("roundtrip not supported on fallback routes; degrading to a single buy leg (balance unknown before first buy)")
	}

	tx, err := m.tradeLocal.TradeTxBase64(ctx, TradeLocalParams{
		Owner:            session.owner,
		Mint:             cfg.Volume.TokenMint,
		Action:           TradeBuy,
		Pool:             PoolPump,
		Amount:           cfg.BuyAmountSol,
		DenominatedInSol: true,
		SlippagePercent:  slippagePercent,
	})
	if err == nil {
		return []string{tx}, "pumpfun", nil
	}
	pumpErr := err

	tx, err = m.tradeLocal.TradeTxBase64(ctx, TradeLocalParams{
		Owner:            session.owner,
		Mint:             cfg.Volume.TokenMint,
		Action:           TradeBuy,
		Pool:             PoolRaydium,
		Amount:           cfg.BuyAmountSol,
		DenominatedInSol: true,
		SlippagePercent:  slippagePercent,
	})
	if err == nil {
		return []string{tx}, "raydium", nil
	}

	return nil, "", fmt.Errorf("launchpad route: %v; amm route: %v", pumpErr, err)
}
