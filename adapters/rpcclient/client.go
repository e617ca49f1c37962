// Package rpcclient is the concrete engine.ClusterRpcClient: a Solana
// JSON-RPC 2.0 client built on valyala/fasthttp rather than net/http,
// matching the HTTP stack already present in the corpus.
package rpcclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/solbot/core/engine"
	"github.com/solbot/core/log"
)

// Client is a single Solana RPC endpoint. One instance is shared by
// every session on a cluster; fasthttp.Client itself pools connections
// internally, so there is no per-call dial cost beyond the first
// request to a given host.
type Client struct {
	endpoint string
	http     *fasthttp.Client
	nextID   uint64
	logger   log.Logger
}

// New builds a client against endpoint (e.g. a Helius/QuickNode RPC
// URL). timeout bounds every individual request.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		logger: log.NewModuleLogger(log.RpcClient),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode())
	}

	var parsed rpcResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(parsed.Result, out)
}

func (c *Client) GetLatestBlockhash(ctx context.Context, commitment engine.Commitment) (string, error) {
	var out struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := c.call(ctx, "getLatestBlockhash", []interface{}{map[string]string{"commitment": string(commitment)}}, &out)
	return out.Value.Blockhash, err
}

type accountInfoValue struct {
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     []interface{} `json:"data"` // [base64, encoding]
}

func decodeAccountInfo(v *accountInfoValue) *engine.AccountInfo {
	if v == nil {
		return nil
	}
	var raw []byte
	if len(v.Data) > 0 {
		if s, ok := v.Data[0].(string); ok {
			raw, _ = base64.StdEncoding.DecodeString(s)
		}
	}
	return &engine.AccountInfo{Owner: v.Owner, Lamports: v.Lamports, Data: raw}
}

func (c *Client) GetAccountInfo(ctx context.Context, pubkey string, commitment engine.Commitment) (*engine.AccountInfo, error) {
	var out struct {
		Value *accountInfoValue `json:"value"`
	}
	params := []interface{}{pubkey, map[string]interface{}{"commitment": string(commitment), "encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	return decodeAccountInfo(out.Value), nil
}

func (c *Client) GetMultipleAccountsInfo(ctx context.Context, pubkeys []string) ([]*engine.AccountInfo, error) {
	var out struct {
		Value []*accountInfoValue `json:"value"`
	}
	params := []interface{}{pubkeys, map[string]interface{}{"encoding": "base64"}}
	if err := c.call(ctx, "getMultipleAccounts", params, &out); err != nil {
		return nil, err
	}
	infos := make([]*engine.AccountInfo, len(out.Value))
	for i, v := range out.Value {
		infos[i] = decodeAccountInfo(v)
	}
	return infos, nil
}

func (c *Client) GetTransaction(ctx context.Context, signature string, commitment engine.Commitment) (*engine.TransactionMessage, error) {
	var out struct {
		BlockTime int64 `json:"blockTime"`
		Meta      struct {
			PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
			PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
		} `json:"meta"`
		Transaction struct {
			Signatures []string `json:"signatures"`
			Message    struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	params := []interface{}{signature, map[string]interface{}{"commitment": string(commitment), "maxSupportedTransactionVersion": 0}}
	if err := c.call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}
	sig := signature
	if len(out.Transaction.Signatures) > 0 {
		sig = out.Transaction.Signatures[0]
	}
	return &engine.TransactionMessage{
		Signature:         sig,
		StaticAccountKeys: out.Transaction.Message.AccountKeys,
		PreTokenBalances:  decodeTokenBalances(out.Meta.PreTokenBalances),
		PostTokenBalances: decodeTokenBalances(out.Meta.PostTokenBalances),
		BlockTime:         out.BlockTime,
	}, nil
}

type rawTokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
}

func decodeTokenBalances(raw []rawTokenBalance) []engine.TokenBalance {
	out := make([]engine.TokenBalance, len(raw))
	for i, r := range raw {
		out[i] = engine.TokenBalance{AccountIndex: r.AccountIndex, Mint: r.Mint, Owner: r.Owner}
	}
	return out
}

func (c *Client) GetTokenSupply(ctx context.Context, mint string) (*engine.TokenSupply, error) {
	var out struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &out); err != nil {
		return nil, err
	}
	var amount uint64
	fmt.Sscanf(out.Value.Amount, "%d", &amount)
	return &engine.TokenSupply{Amount: amount, Decimals: out.Value.Decimals}, nil
}

func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint string) ([]engine.TokenAccountAmount, error) {
	var out struct {
		Value []struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &out); err != nil {
		return nil, err
	}
	accounts := make([]engine.TokenAccountAmount, len(out.Value))
	for i, v := range out.Value {
		var amt uint64
		fmt.Sscanf(v.Amount, "%d", &amt)
		accounts[i] = engine.TokenAccountAmount{Amount: amt}
	}
	return accounts, nil
}

func (c *Client) GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment engine.Commitment) ([]engine.SignatureInfo, error) {
	var out []struct {
		Signature string `json:"signature"`
		BlockTime *int64 `json:"blockTime"`
	}
	params := []interface{}{pubkey, map[string]interface{}{"limit": limit, "commitment": string(commitment)}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &out); err != nil {
		return nil, err
	}
	infos := make([]engine.SignatureInfo, len(out))
	for i, v := range out {
		infos[i] = engine.SignatureInfo{Signature: v.Signature, BlockTime: v.BlockTime}
	}
	return infos, nil
}
