package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"ore-autominer/internal/metrics"
)

const (
	DefaultTimeout     = time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 50 * time.Millisecond
	DefaultMaxDelay    = 500 * time.Millisecond
	DefaultBackoffMult = 2.0

	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
)

var ErrAccountNotFound = errors.New("account not found")

// RPCClient is a Solana JSON-RPC 2.0 client over HTTP. It is safe for
// concurrent use.
type RPCClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	rtt         *RTTEstimator
}

type ClientOption func(*RPCClient)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.maxDelay = d
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *RPCClient) {
		c.client = client
	}
}

// WithRTTEstimator feeds every successful round trip into e.
func WithRTTEstimator(e *RTTEstimator) ClientOption {
	return func(c *RPCClient) {
		c.rtt = e
	}
}

func NewRPCClient(endpoint string, opts ...ClientOption) *RPCClient {
	c := &RPCClient{
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

func (c *RPCClient) RTT() *RTTEstimator {
	return c.rtt
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC call with retries and exponential backoff on
// transport failures, 429 and 5xx.
func (c *RPCClient) Call(ctx context.Context, method string, params []any, result any) error {
	started := time.Now()
	err := c.call(ctx, method, params, result)
	metrics.RPCCallLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RPCErrors.WithLabelValues(method).Inc()
	}
	return err
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
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

		sent := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		c.rtt.Observe(time.Since(sent))

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

type AccountInfo struct {
	Lamports   uint64
	Owner      PublicKey
	Executable bool
	Data       []byte
}

type rawAccount struct {
	Lamports   uint64    `json:"lamports"`
	Owner      PublicKey `json:"owner"`
	Executable bool      `json:"executable"`
	Data       []string  `json:"data"`
}

func (r *rawAccount) decode() (*AccountInfo, error) {
	if r == nil {
		return nil, nil
	}
	info := &AccountInfo{Lamports: r.Lamports, Owner: r.Owner, Executable: r.Executable}
	if len(r.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(r.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

func (c *RPCClient) GetAccountInfo(ctx context.Context, account PublicKey) (*AccountInfo, error) {
	var out struct {
		Value *rawAccount `json:"value"`
	}
	err := c.Call(ctx, "getAccountInfo", []any{
		account.String(),
		map[string]any{"encoding": "base64", "commitment": CommitmentConfirmed},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, ErrAccountNotFound
	}
	return out.Value.decode()
}

// GetMultipleAccounts returns one entry per key; missing accounts are nil.
func (c *RPCClient) GetMultipleAccounts(ctx context.Context, accounts ...PublicKey) ([]*AccountInfo, error) {
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = a.String()
	}
	var out struct {
		Value []*rawAccount `json:"value"`
	}
	err := c.Call(ctx, "getMultipleAccounts", []any{
		keys,
		map[string]any{"encoding": "base64", "commitment": CommitmentConfirmed},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Value) != len(accounts) {
		return nil, fmt.Errorf("getMultipleAccounts: got %d accounts, want %d", len(out.Value), len(accounts))
	}
	infos := make([]*AccountInfo, len(out.Value))
	for i, raw := range out.Value {
		info, err := raw.decode()
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

func (c *RPCClient) GetBalance(ctx context.Context, account PublicKey) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	err := c.Call(ctx, "getBalance", []any{account.String(), map[string]any{"commitment": CommitmentConfirmed}}, &out)
	return out.Value, err
}

func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.Call(ctx, "getSlot", []any{map[string]any{"commitment": CommitmentProcessed}}, &slot)
	return slot, err
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	var out struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": CommitmentConfirmed}}, &out); err != nil {
		return Hash{}, err
	}
	return ParseHash(out.Value.Blockhash)
}

type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Failed() {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// GetSignatureStatuses returns one entry per signature; unknown ones are nil.
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.Call(ctx, "getSignatureStatuses", []any{
		signatures,
		map[string]any{"searchTransactionHistory": true},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Value) != len(signatures) {
		return nil, fmt.Errorf("getSignatureStatuses: got %d statuses, want %d", len(out.Value), len(signatures))
	}
	return out.Value, nil
}

// SendTransaction submits a signed transaction without preflight.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	var sig string
	err = c.Call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{"encoding": "base64", "skipPreflight": true, "maxRetries": 0},
	}, &sig)
	return sig, err
}

func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, account PublicKey) (uint64, error) {
	var out struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getTokenAccountBalance", []any{account.String()}, &out); err != nil {
		return 0, err
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}
