package engine

import (
	"context"

	"github.com/solbot/core/common"
)

// The interfaces below are the external collaborators the engine
// talks to but never implements itself. The engine package only calls
// them; concrete implementations live under adapters/ and are wired
// by cmd/solbot, never imported back into engine.

// Commitment mirrors Solana's commitment levels.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// AccountInfo is the shape returned by getAccountInfo /
// getMultipleAccountsInfo.
type AccountInfo struct {
	Owner    string
	Data     []byte
	Lamports uint64
}

// TokenBalance is one entry of pre/postTokenBalances on a transaction.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
}

// TransactionMessage is the decoded subset of a transaction the core
// needs: static account keys (payer first) and token balance deltas.
type TransactionMessage struct {
	Signature          string
	StaticAccountKeys  []string
	PreTokenBalances   []TokenBalance
	PostTokenBalances  []TokenBalance
	BlockTime          int64
}

// TokenSupply is the result of getTokenSupply.
type TokenSupply struct {
	Amount   uint64
	Decimals int
}

// TokenAccountAmount is one entry of getTokenLargestAccounts.
type TokenAccountAmount struct {
	Amount uint64
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	BlockTime *int64
}

// ClusterRpcClient is the synchronous-feeling async RPC surface.
// Implementations should retry transient errors internally; the
// engine additionally wraps its own retry budget around GetTransaction
// itself (see autodiscovery.go).
type ClusterRpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (string, error)
	GetMultipleAccountsInfo(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)
	GetAccountInfo(ctx context.Context, pubkey string, commitment Commitment) (*AccountInfo, error)
	GetTransaction(ctx context.Context, signature string, commitment Commitment) (*TransactionMessage, error)
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountAmount, error)
	GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment Commitment) ([]SignatureInfo, error)
}

// LogNotification is a single logsNotification payload, already
// unwrapped down to the fields the log-stream multiplexer needs.
type LogNotification struct {
	SubscriptionKey string
	Signature       string
	Logs            []string
}

// ClusterWsClient is a single-writer duplex connection abstraction.
// The engine treats Send/Close as the only mutating operations and
// drives everything else from OnMessage.
type ClusterWsClient interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Close() error
	OnMessage(handler func(raw []byte))
	OnOpen(handler func())
	OnClose(handler func())
	OnError(handler func(err error))
}

// SwapTxParams is the input to the snipe-mode placeholder swap
// instruction builder.
type SwapTxParams struct {
	Cluster  common.Cluster
	Owner    string
	AmountSol float64
	Memo     string
	CuLimit  uint32
	CuPrice  uint64
}

// TipTxParams is the input to the tip transaction builder.
type TipTxParams struct {
	Cluster     common.Cluster
	Owner       string
	TipAccount  string
	TipLamports uint64
	Memo        string
}

// SwapAdapter is the snipe-mode venue-routing placeholder; a
// production deployment swaps this for a real Raydium/Jupiter/
// PumpPortal instruction builder.
type SwapAdapter interface {
	BuildUnsignedBuyTxBase64(ctx context.Context, p SwapTxParams) (string, error)
	BuildUnsignedSellTxBase64(ctx context.Context, p SwapTxParams) (string, error)
	BuildUnsignedTipTxBase64(ctx context.Context, p TipTxParams) (string, error)
}

// DexQuoteParams / DexQuote / DexSwapParams are the volume-mode
// primary route's aggregator contract.
type DexQuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

type DexQuote struct {
	OutAmount uint64
	Raw       interface{} // opaque, passed back into SwapTxBase64
}

type DexSwapParams struct {
	Quote            DexQuote
	UserPublicKey    string
	WrapAndUnwrapSol bool
}

// DexAggregatorAdapter is the volume-mode primary route.
type DexAggregatorAdapter interface {
	Quote(ctx context.Context, p DexQuoteParams) (DexQuote, error)
	SwapTxBase64(ctx context.Context, p DexSwapParams) (string, error)
}

// TradeAction selects buy or sell for the TradeLocalAdapter fallback
// routes.
type TradeAction string

const (
	TradeBuy  TradeAction = "buy"
	TradeSell TradeAction = "sell"
)

// TradePool selects which fallback venue a TradeLocalAdapter call
// targets.
type TradePool string

const (
	PoolPump    TradePool = "pump"
	PoolRaydium TradePool = "raydium"
)

// TradeLocalParams is the input to the volume-mode fallback routes.
type TradeLocalParams struct {
	Owner             string
	Mint              string
	Action            TradeAction
	Pool              TradePool
	Amount            float64
	DenominatedInSol  bool
	SlippagePercent   float64
	PriorityFeeSol    *float64
}

// TradeLocalAdapter is the volume-mode fallback route (pre- and
// post-migration), normalized to base64 regardless of what the
// upstream endpoint actually returned.
type TradeLocalAdapter interface {
	TradeTxBase64(ctx context.Context, p TradeLocalParams) (string, error)
}

// BlockEngineClient is the MEV-protection submission surface.
type BlockEngineClient interface {
	GetTipAccounts(ctx context.Context, cluster common.Cluster) ([]string, error)
	SimulateBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error)
	SendBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error)
	GetBundleStatuses(ctx context.Context, cluster common.Cluster, ids []string) (interface{}, error)
}
