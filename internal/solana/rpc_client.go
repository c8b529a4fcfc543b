package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	observe     CallObserver
}

// CallObserver receives the method, total latency and final error of every call.
type CallObserver func(method string, elapsed time.Duration, err error)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithObserver registers a per-call latency observer.
func WithObserver(fn CallObserver) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call, reporting its outcome to the observer.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	err := c.doCall(ctx, method, params, result)
	if c.observe != nil {
		c.observe(method, time.Since(start), err)
	}
	return err
}

// doCall performs a JSON-RPC call with retries and exponential backoff.
// Transport failures, 429 and 5xx are retried; other statuses and RPC
// errors are returned immediately.
func (c *HTTPClient) doCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, truncate(respBody, 256))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, truncate(respBody, 256))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return fmt.Errorf("%s: %w", method, rpcResp.Error)
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("%s: unmarshal result: %w", method, err)
			}
		}

		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// maxMultipleAccounts is the getMultipleAccounts per-request key limit.
const maxMultipleAccounts = 100

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// GetProgramAccounts returns all accounts owned by programID matching every filter.
func (c *HTTPClient) GetProgramAccounts(ctx context.Context, programID PublicKey, filters []AccountFilter) ([]KeyedAccount, error) {
	config := map[string]interface{}{
		"encoding": "base64",
	}
	if len(filters) > 0 {
		raw := make([]map[string]interface{}, 0, len(filters))
		for _, f := range filters {
			switch {
			case f.Memcmp != nil:
				raw = append(raw, map[string]interface{}{
					"memcmp": map[string]interface{}{
						"offset": f.Memcmp.Offset,
						"bytes":  base58.Encode(f.Memcmp.Bytes),
					},
				})
			case f.DataSize > 0:
				raw = append(raw, map[string]interface{}{"dataSize": f.DataSize})
			}
		}
		config["filters"] = raw
	}

	params := []interface{}{programID.String(), config}

	var result []getProgramAccountsItem
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]KeyedAccount, 0, len(result))
	for _, item := range result {
		pk, err := PublicKeyFromBase58(item.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("program account pubkey: %w", err)
		}
		accounts = append(accounts, KeyedAccount{
			Pubkey:  pk,
			Account: item.Account.toAccountInfo(),
		})
	}

	return accounts, nil
}

// getProgramAccountsItem is the raw RPC response item for getProgramAccounts.
type getProgramAccountsItem struct {
	Pubkey  string              `json:"pubkey"`
	Account getAccountInfoValue `json:"account"`
}

// GetMultipleAccounts returns account infos in request order, batching
// requests at the RPC key limit. Missing accounts are nil entries.
func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, keys []PublicKey) ([]*AccountInfo, error) {
	infos := make([]*AccountInfo, 0, len(keys))

	for start := 0; start < len(keys); start += maxMultipleAccounts {
		end := start + maxMultipleAccounts
		if end > len(keys) {
			end = len(keys)
		}

		encoded := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			encoded = append(encoded, k.String())
		}

		params := []interface{}{
			encoded,
			map[string]interface{}{
				"encoding": "base64",
			},
		}

		var result getMultipleAccountsResult
		if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
			return nil, err
		}
		if len(result.Value) != end-start {
			return nil, fmt.Errorf("getMultipleAccounts: expected %d accounts, got %d", end-start, len(result.Value))
		}

		for _, v := range result.Value {
			infos = append(infos, v.toAccountInfo())
		}
	}

	return infos, nil
}

type getMultipleAccountsResult struct {
	Value []*getAccountInfoValue `json:"value"`
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey PublicKey) (*AccountInfo, error) {
	params := []interface{}{
		pubkey.String(),
		map[string]interface{}{
			"encoding": "base64",
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	return result.Value.toAccountInfo(), nil
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

func (v *getAccountInfoValue) toAccountInfo() *AccountInfo {
	if v == nil {
		return nil
	}
	info := &AccountInfo{
		Lamports:   v.Lamports,
		Owner:      v.Owner,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
	}
	if len(v.Data) >= 1 {
		info.Data = v.Data[0]
	}
	return info
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}
