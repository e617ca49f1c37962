package engine

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/solbot/core/log"
)

var createLogRe = regexp.MustCompile(`(?i)instruction:\s*create`)

// retry budgets for transaction fetch.
const (
	confirmedAttempts = 3
	confirmedBaseMs   = 200
	finalizedAttempts = 2
	finalizedBaseMs   = 250

	maxStaticKeyProbe = 25
)

// AutoDiscoveryFilter is C3: given a deduped pumpfun signal and a
// session's captured (config, epoch), decide whether to arm a pending
// action, tracking a per-mint momentum window along the way.
type AutoDiscoveryFilter struct {
	rpc      ClusterRpcClient
	throttle *RPCThrottle
	logger   log.Logger
}

func NewAutoDiscoveryFilter(rpc ClusterRpcClient, throttle *RPCThrottle) *AutoDiscoveryFilter {
	return &AutoDiscoveryFilter{rpc: rpc, throttle: throttle, logger: log.NewModuleLogger(log.AutoDiscovery)}
}

func (f *AutoDiscoveryFilter) reject(session *Session, reason string) {
	session.autoStats.bumpReject(reason)
	session.Info(fmt.Sprintf("auto-discovery reject: %s", reason))
}

// fetchTransactionWithRetry tries commitment=confirmed (3 attempts,
// 200ms base exponential backoff), then finalized (2 attempts, 250ms
// base).
func (f *AutoDiscoveryFilter) fetchTransactionWithRetry(ctx context.Context, signature string) (*TransactionMessage, error) {
	tx, err := f.retryFetch(ctx, signature, CommitmentConfirmed, confirmedAttempts, confirmedBaseMs)
	if tx != nil {
		return tx, nil
	}
	_ = err
	tx, err = f.retryFetch(ctx, signature, CommitmentFinalized, finalizedAttempts, finalizedBaseMs)
	return tx, err
}

func (f *AutoDiscoveryFilter) retryFetch(ctx context.Context, signature string, commitment Commitment, attempts int, baseMs int64) (*TransactionMessage, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var tx *TransactionMessage
		err := f.throttle.Do(ctx, func() error {
			var err error
			tx, err = f.rpc.GetTransaction(ctx, signature, commitment)
			return err
		})
		if err == nil && tx != nil {
			return tx, nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(baseMs) * time.Millisecond * time.Duration(1<<attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// Process runs the full auto-discovery funnel for one deduped pumpfun
// signal: transaction fetch, mint inference, momentum tracking, the
// memoized safety check, and finally arming a pending action once
// every gate clears.
func (f *AutoDiscoveryFilter) Process(ctx context.Context, session *Session, snap Snapshot, notif routedNotification) {
	session.autoStats.bumpSignals()

	isCreateFromLogs := anyMatches(createLogRe, notif.Logs)

	tx, err := f.fetchTransactionWithRetry(ctx, notif.Signature)
	if !session.StillValid(snap) {
		return
	}
	if err != nil || tx == nil {
		f.reject(session, "noMint")
		return
	}
	session.autoStats.bumpTxOk()

	mint := inferMint(tx)
	if mint == "" {
		mint, err = f.inferMintByProbing(ctx, tx)
		if !session.StillValid(snap) {
			return
		}
		if err != nil {
			// RPC failure while probing is not itself a reject reason;
			// fall through to the empty-mint check below.
		}
	}
	if mint == "" {
		f.reject(session, "noMint")
		return
	}
	session.autoStats.bumpMintInferred()

	isMintNewInTx := mintIn(tx.PostTokenBalances, mint) && !mintIn(tx.PreTokenBalances, mint)
	isCreate := isCreateFromLogs || isMintNewInTx

	now := nowMs()
	entry, existed := session.momentum(mint)
	cfg := snap.Config.AutoSnipe

	if !existed {
		if !isCreate {
			f.reject(session, "notNew")
			return
		}
		entry = &MomentumEntry{FirstSeenMs: now, CreatedAtMs: now, UniqueFeePayers: make(map[string]struct{})}
	} else if now-entry.FirstSeenMs > cfg.WindowSec*1000 {
		if !isCreate {
			f.reject(session, "windowExpired")
			return
		}
		entry = &MomentumEntry{FirstSeenMs: now, CreatedAtMs: now, UniqueFeePayers: make(map[string]struct{})}
	}

	ageSec := (now - entry.CreatedAtMs) / 1000
	if ageSec > cfg.MaxTxAgeSec {
		f.reject(session, "tooOld")
		session.setMomentum(mint, entry)
		return
	}

	entry.Count++
	if len(tx.StaticAccountKeys) > 0 {
		entry.UniqueFeePayers[tx.StaticAccountKeys[0]] = struct{}{}
	}

	if entry.Safety == nil {
		safety, err := f.runSafetyCheck(ctx, mint, cfg)
		if !session.StillValid(snap) {
			return
		}
		if err != nil {
			session.setMomentum(mint, entry)
			f.reject(session, "noMint")
			return
		}
		entry.Safety = safety
	}
	session.setMomentum(mint, entry)

	if !session.StillValid(snap) {
		return
	}

	if !entry.Safety.OK {
		f.reject(session, entry.Safety.Reason)
		return
	}
	session.autoStats.bumpSafetyOk()

	if entry.Count < cfg.MinSignalsInWindow {
		f.reject(session, "momentum")
		return
	}
	if len(entry.UniqueFeePayers) < cfg.MinUniqueFeePayersInWindow {
		f.reject(session, "uniquePayers")
		return
	}

	pa := &PendingAction{
		Kind:             PendingActionSignAndBundle,
		Reason:           fmt.Sprintf("auto-discovery trigger for mint %s (signal %s)", mint, notif.Signature),
		TriggerSignature: notif.Signature,
		Source:           SourcePumpfun,
		TargetMint:       mint,
		NeedsUnsignedTxs: true,
	}
	if session.TryArmPendingAction(snap, pa) {
		session.autoStats.bumpTriggered()
		session.Info(fmt.Sprintf("auto-discovery triggered for mint %s", mint))
	}
}

func anyMatches(re *regexp.Regexp, logs []string) bool {
	for _, l := range logs {
		if re.MatchString(l) {
			return true
		}
	}
	return false
}

func mintIn(balances []TokenBalance, mint string) bool {
	for _, b := range balances {
		if b.Mint == mint {
			return true
		}
	}
	return false
}

// inferMint applies the balance-union heuristic: take the ordered
// union of pre- and post-token-balance mints; union size 1 uses it
// directly, size >1 permissively uses the first rather than rejecting
// the signal outright.
func inferMint(tx *TransactionMessage) string {
	seen := make(map[string]struct{})
	var order []string
	for _, b := range tx.PreTokenBalances {
		if _, ok := seen[b.Mint]; !ok && b.Mint != "" {
			seen[b.Mint] = struct{}{}
			order = append(order, b.Mint)
		}
	}
	for _, b := range tx.PostTokenBalances {
		if _, ok := seen[b.Mint]; !ok && b.Mint != "" {
			seen[b.Mint] = struct{}{}
			order = append(order, b.Mint)
		}
	}
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// inferMintByProbing is the fallback when the balance-union heuristic
// finds nothing: probe up to the first 25 static account keys for a
// token-mint account.
func (f *AutoDiscoveryFilter) inferMintByProbing(ctx context.Context, tx *TransactionMessage) (string, error) {
	keys := tx.StaticAccountKeys
	if len(keys) > maxStaticKeyProbe {
		keys = keys[:maxStaticKeyProbe]
	}

	var infos []*AccountInfo
	err := f.throttle.Do(ctx, func() error {
		var err error
		infos, err = f.rpc.GetMultipleAccountsInfo(ctx, keys)
		return err
	})
	if err != nil {
		return "", err
	}

	for i, info := range infos {
		if info == nil || !isKnownTokenProgram(info.Owner) {
			continue
		}
		layout, err := parseMintLayout(info.Data)
		if err != nil || !layout.IsInitialized {
			continue
		}
		return keys[i], nil
	}
	return "", nil
}
