// Package blockengine is the concrete engine.BlockEngineClient: a
// Jito-style block-engine JSON-RPC client with a small internal retry
// budget for rate-limited requests, built on valyala/fasthttp like
// adapters/rpcclient.
package blockengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
)

const (
	retryAttempts = 3
	retryBaseMs   = 400
	retryJitterMs = 200
)

// Client talks to one block-engine endpoint per cluster; mainnet and
// devnet each get their own instance (devnet's is typically never
// actually called, since engine/bundle.go rejects Prepare on devnet).
type Client struct {
	endpoint string
	http     *fasthttp.Client
	nextID   uint64
	logger   log.Logger
}

func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		logger:   log.NewModuleLogger(log.BlockEngine),
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

// call retries on HTTP 429 with jittered backoff; any other status or
// a well-formed JSON-RPC error is returned immediately.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(retryBaseMs<<uint(attempt-1))*time.Millisecond + time.Duration(rand.Intn(retryJitterMs))*time.Millisecond):
			}
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.SetRequestURI(c.endpoint)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(body)

		deadline := time.Now().Add(15 * time.Second)
		if dl, ok := ctx.Deadline(); ok {
			deadline = dl
		}
		err := c.http.DoDeadline(req, resp, deadline)
		status := resp.StatusCode()
		var respBody []byte
		if err == nil {
			respBody = append(respBody, resp.Body()...)
		}
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if err != nil {
			lastErr = fmt.Errorf("%s: %w", method, err)
			continue
		}
		if status == fasthttp.StatusTooManyRequests {
			lastErr = fmt.Errorf("%s: rate limited", method)
			c.logger.Warn("block-engine rate limited, retrying", "method", method, "attempt", attempt)
			continue
		}
		if status != fasthttp.StatusOK {
			return fmt.Errorf("%s: unexpected status %d", method, status)
		}

		var parsed rpcResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
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
	return lastErr
}

func (c *Client) GetTipAccounts(ctx context.Context, cluster common.Cluster) ([]string, error) {
	var out []string
	err := c.call(ctx, "getTipAccounts", nil, &out)
	return out, err
}

func (c *Client) SimulateBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error) {
	var out interface{}
	err := c.call(ctx, "simulateBundle", []interface{}{signedTxsBase58}, &out)
	return out, err
}

func (c *Client) SendBundle(ctx context.Context, cluster common.Cluster, signedTxsBase58 []string) (interface{}, error) {
	var out interface{}
	err := c.call(ctx, "sendBundle", []interface{}{signedTxsBase58}, &out)
	return out, err
}

func (c *Client) GetBundleStatuses(ctx context.Context, cluster common.Cluster, ids []string) (interface{}, error) {
	var out interface{}
	err := c.call(ctx, "getBundleStatuses", []interface{}{ids}, &out)
	return out, err
}
