// Package rpcclient is the C1 JSON-RPC facade: a single-method JSON-RPC 2.0
// HTTP client with a fixed retry/backoff schedule, a per-request timeout,
// and a rate limiter ahead of every call.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chainindex/txprocessor/internal/config"
)

// Client is the JSON-RPC transport used to fetch receipts and the current
// block number.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      int
	timeout    time.Duration
	log        *zap.Logger
}

// New builds a Client from cfg. limit/burst bound outbound request rate;
// pass rate.Inf to disable limiting entirely. log may be nil.
func New(cfg config.RPCConfig, limit rate.Limit, burst int, log *zap.Logger) *Client {
	timeout := cfg.RequestTimeOut
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		retry:      cfg.Retry,
		timeout:    timeout,
		log:        log,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// errRPCNull marks an RPC-level null: a response carrying a non-null
// "error" object, or one with neither "error" nor "result". Per spec.md
// §4.1 this is not a transport failure — it resolves to a null result
// immediately, consuming no retry attempt.
var errRPCNull = errors.New("rpc null response")

// call performs a single JSON-RPC request with the configured retry
// schedule: config.retry extra attempts beyond the first, a 1s pause
// between each. Only transport-level failures (dial errors, timeouts,
// malformed HTTP bodies) consume a retry attempt; an RPC-level error or a
// missing result short-circuits to (nil, nil) without retrying.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.doCall(ctx, method, params)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, errRPCNull) {
			c.log.Warn("rpc call returned null", zap.String("method", method), zap.Error(err))
			return nil, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "rpc call %s failed after %d attempts", method, attempts)
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if rr.Error != nil {
		return nil, errors.Wrapf(errRPCNull, "rpc error %d: %s", rr.Error.Code, rr.Error.Message)
	}
	if rr.Result == nil {
		return nil, errors.Wrap(errRPCNull, "rpc response missing result")
	}
	return rr.Result, nil
}

// GetTransactionReceipt fetches a receipt by hash. A nil, nil return means
// the node has no receipt for this hash yet (pending/unknown tx); the
// processor treats that as a non-error and does not retry it.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (json.RawMessage, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}
	return result, nil
}

// GetBlockNumber returns the chain's current block number, used by the
// staleness probe (spec.md §4.7 step 5).
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, errors.New("eth_blockNumber: node returned no result")
	}
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return 0, errors.Wrap(err, "decode blockNumber result")
	}
	n, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, errors.Wrap(err, "decode blockNumber quantity")
	}
	return n, nil
}

// GetCode fetches an address's deployed bytecode, used by the pool
// detector's code-presence and selector-coverage checks.
func (c *Client) GetCode(ctx context.Context, address string) ([]byte, error) {
	result, err := c.call(ctx, "eth_getCode", address, "latest")
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("eth_getCode: node returned no result")
	}
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, errors.Wrap(err, "decode getCode result")
	}
	return hexutil.Decode(hex)
}

// Call performs a read-only eth_call against to with the given calldata,
// used by the pool detector's view-call verification.
func (c *Client) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	callObj := map[string]string{
		"to":   to,
		"data": hexutil.Encode(data),
	}
	result, err := c.call(ctx, "eth_call", callObj, "latest")
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("eth_call: node returned no result")
	}
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, errors.Wrap(err, "decode call result")
	}
	return hexutil.Decode(hex)
}
