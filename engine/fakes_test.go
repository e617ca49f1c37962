package engine

import (
	"context"
	"sync"

	"github.com/solbot/core/common"
)

// fakeWs is a minimal in-memory ClusterWsClient stub: Open always
// succeeds and Send just records what was written, with no real
// network activity.
type fakeWs struct {
	mu   sync.Mutex
	sent [][]byte

	onMessage func([]byte)
	onOpen    func()
	onClose   func()
	onError   func(error)
}

func newFakeWs() *fakeWs { return &fakeWs{} }

func (f *fakeWs) Open(ctx context.Context) error {
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}

func (f *fakeWs) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeWs) Close() error { return nil }

func (f *fakeWs) OnMessage(handler func(raw []byte)) { f.onMessage = handler }
func (f *fakeWs) OnOpen(handler func())              { f.onOpen = handler }
func (f *fakeWs) OnClose(handler func())             { f.onClose = handler }
func (f *fakeWs) OnError(handler func(err error))    { f.onError = handler }

// fakeRpc is a minimal in-memory ClusterRpcClient stub shared across
// engine tests. Each field is a function so a test only wires what it
// actually exercises; the rest panic on unexpected use.
type fakeRpc struct {
	mu sync.Mutex

	latestBlockhash string

	accounts map[string]*AccountInfo
	txs      map[string]*TransactionMessage
	supplies map[string]*TokenSupply
	holders  map[string][]TokenAccountAmount
	sigs     map[string][]SignatureInfo

	getTransactionErr   error
	getAccountInfoErr   error
	getTokenSupplyErr   error
	getLargestAccountsErr error
}

func newFakeRpc() *fakeRpc {
	return &fakeRpc{
		accounts: make(map[string]*AccountInfo),
		txs:      make(map[string]*TransactionMessage),
		supplies: make(map[string]*TokenSupply),
		holders:  make(map[string][]TokenAccountAmount),
		sigs:     make(map[string][]SignatureInfo),
	}
}

func (f *fakeRpc) GetLatestBlockhash(ctx context.Context, commitment Commitment) (string, error) {
	return f.latestBlockhash, nil
}

func (f *fakeRpc) GetMultipleAccountsInfo(ctx context.Context, pubkeys []string) ([]*AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*AccountInfo, len(pubkeys))
	for i, k := range pubkeys {
		out[i] = f.accounts[k]
	}
	return out, nil
}

func (f *fakeRpc) GetAccountInfo(ctx context.Context, pubkey string, commitment Commitment) (*AccountInfo, error) {
	if f.getAccountInfoErr != nil {
		return nil, f.getAccountInfoErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[pubkey], nil
}

func (f *fakeRpc) GetTransaction(ctx context.Context, signature string, commitment Commitment) (*TransactionMessage, error) {
	if f.getTransactionErr != nil {
		return nil, f.getTransactionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[signature], nil
}

func (f *fakeRpc) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	if f.getTokenSupplyErr != nil {
		return nil, f.getTokenSupplyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supplies[mint], nil
}

func (f *fakeRpc) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountAmount, error) {
	if f.getLargestAccountsErr != nil {
		return nil, f.getLargestAccountsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holders[mint], nil
}

func (f *fakeRpc) GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment Commitment) ([]SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sigs[pubkey], nil
}

// fakeBlockEngine is a minimal in-memory BlockEngineClient stub.
type fakeBlockEngine struct {
	mu sync.Mutex

	tipAccounts []string

	getTipAccountsErr error
	simulateErr       error
	sendErr           error
	sendResult        interface{}
	statuses          interface{}
}

func newFakeBlockEngine() *fakeBlockEngine {
	return &fakeBlockEngine{}
}

func (f *fakeBlockEngine) GetTipAccounts(ctx context.Context, cluster common.Cluster) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getTipAccountsErr != nil {
		return nil, f.getTipAccountsErr
	}
	return f.tipAccounts, nil
}

func (f *fakeBlockEngine) SimulateBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error) {
	if f.simulateErr != nil {
		return nil, f.simulateErr
	}
	return "ok", nil
}

func (f *fakeBlockEngine) SendBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return "remote-id-1", nil
}

func (f *fakeBlockEngine) GetBundleStatuses(ctx context.Context, cluster common.Cluster, ids []string) (interface{}, error) {
	return f.statuses, nil
}

// fakeSwap is a minimal in-memory SwapAdapter stub for snipe-mode tests.
type fakeSwap struct {
	buyErr  error
	sellErr error
	tipErr  error
}

func (f *fakeSwap) BuildUnsignedBuyTxBase64(ctx context.Context, p SwapTxParams) (string, error) {
	if f.buyErr != nil {
		return "", f.buyErr
	}
	return "buy-tx", nil
}

func (f *fakeSwap) BuildUnsignedSellTxBase64(ctx context.Context, p SwapTxParams) (string, error) {
	if f.sellErr != nil {
		return "", f.sellErr
	}
	return "sell-tx", nil
}

func (f *fakeSwap) BuildUnsignedTipTxBase64(ctx context.Context, p TipTxParams) (string, error) {
	if f.tipErr != nil {
		return "", f.tipErr
	}
	return "tip-tx", nil
}

// fakeDex is a minimal in-memory DexAggregatorAdapter stub for
// volume-mode primary-route tests.
type fakeDex struct {
	quoteErr error
	swapErr  error
	outAmount uint64
}

func (f *fakeDex) Quote(ctx context.Context, p DexQuoteParams) (DexQuote, error) {
	if f.quoteErr != nil {
		return DexQuote{}, f.quoteErr
	}
	out := f.outAmount
	if out == 0 {
		out = p.Amount
	}
	return DexQuote{OutAmount: out}, nil
}

func (f *fakeDex) SwapTxBase64(ctx context.Context, p DexSwapParams) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	return "dex-swap-tx", nil
}

// fakeTradeLocal is a minimal in-memory TradeLocalAdapter stub for
// volume-mode fallback-route tests.
type fakeTradeLocal struct {
	errByPool map[TradePool]error
}

func (f *fakeTradeLocal) TradeTxBase64(ctx context.Context, p TradeLocalParams) (string, error) {
	if f.errByPool != nil {
		if err, ok := f.errByPool[p.Pool]; ok && err != nil {
			return "", err
		}
	}
	return "trade-" + string(p.Pool) + "-tx", nil
}
