package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when the ledger has no AMM for the asset pair.
var ErrNotFound = errors.New("xrpl: amm not found")

// AMMInfo is the pool state returned by amm_info.
type AMMInfo struct {
	Account    string `json:"account"`
	Amount     Amount `json:"amount"`
	Amount2    Amount `json:"amount2"`
	LPToken    Amount `json:"lp_token"`
	TradingFee uint32 `json:"trading_fee"`
}

// Reserves returns the XRP and token reserves, selected by shape.
func (i AMMInfo) Reserves() (native, issued Amount, ok bool) {
	return SplitReserves(i.Amount, i.Amount2)
}

// AMMQuerier looks up pool state for an asset pair.
type AMMQuerier interface {
	AMMInfo(ctx context.Context, asset, asset2 Asset) (*AMMInfo, error)
}

// RPCConfig configures the JSON-RPC client.
type RPCConfig struct {
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
	// BaseBackoff is the first retry delay; it doubles on each attempt.
	// MaxRetries 0 makes a single attempt.
	BaseBackoff time.Duration
}

// RPCClient talks to a rippled JSON-RPC endpoint.
type RPCClient struct {
	config     RPCConfig
	httpClient *http.Client

	requestCount atomic.Int64
	errorCount   atomic.Int64
	latencySum   atomic.Int64 // cumulative microseconds
}

// NewRPCClient creates a JSON-RPC client.
func NewRPCClient(config RPCConfig) *RPCClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseBackoff == 0 {
		config.BaseBackoff = 500 * time.Millisecond
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &RPCClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// rippled reports failures inside result with status "error".
type rpcResult struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// call posts one JSON-RPC request with bounded retries. Ledger-level errors
// in the result are returned without retry.
func (c *RPCClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return nil, fmt.Errorf("xrpl: marshal %s: %w", method, err)
	}

	attempts := 0
	permanent := false
	operation := func() (json.RawMessage, error) {
		attempts++
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			permanent = true
			return nil, backoff.Permanent(fmt.Errorf("xrpl: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				permanent = true
				return nil, backoff.Permanent(ctx.Err())
			}
			c.errorCount.Add(1)
			return nil, fmt.Errorf("xrpl: %s http error: %w", method, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.requestCount.Add(1)
		c.latencySum.Add(time.Since(start).Microseconds())
		if err != nil {
			c.errorCount.Add(1)
			return nil, fmt.Errorf("xrpl: %s read response: %w", method, err)
		}
		if resp.StatusCode != http.StatusOK {
			c.errorCount.Add(1)
			return nil, fmt.Errorf("xrpl: %s HTTP %d: %s", method, resp.StatusCode, string(respBody))
		}

		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil || len(envelope.Result) == 0 {
			c.errorCount.Add(1)
			return nil, fmt.Errorf("xrpl: %s malformed response: %s", method, string(respBody))
		}

		var status rpcResult
		if err := json.Unmarshal(envelope.Result, &status); err == nil && status.Status == "error" {
			c.errorCount.Add(1)
			permanent = true
			if status.Error == "actNotFound" {
				return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, status.ErrorMessage))
			}
			return nil, backoff.Permanent(fmt.Errorf("xrpl: %s error %s: %s", method, status.Error, status.ErrorMessage))
		}
		return envelope.Result, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.config.BaseBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.config.MaxRetries)), ctx)

	result, err := backoff.RetryNotifyWithData(operation, policy, func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("method", method).Dur("retry_in", wait).Msg("xrpl: rpc retry")
	})
	if err != nil {
		if permanent || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("xrpl: %s failed after %d attempts: %w", method, attempts, err)
	}
	return result, nil
}

// AMMInfo queries the pool for an asset pair.
func (c *RPCClient) AMMInfo(ctx context.Context, asset, asset2 Asset) (*AMMInfo, error) {
	result, err := c.call(ctx, "amm_info", map[string]any{
		"asset":        asset,
		"asset2":       asset2,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		AMM *AMMInfo `json:"amm"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("xrpl: parse amm_info: %w", err)
	}
	if resp.AMM == nil {
		return nil, ErrNotFound
	}
	log.Debug().
		Str("account", resp.AMM.Account).
		Str("amount", resp.AMM.Amount.String()).
		Str("amount2", resp.AMM.Amount2.String()).
		Msg("xrpl: amm_info")
	return resp.AMM, nil
}

// RPCStats returns client statistics.
type RPCStats struct {
	RequestCount int64 `json:"request_count"`
	ErrorCount   int64 `json:"error_count"`
	AvgLatencyUs int64 `json:"avg_latency_us"`
}

func (c *RPCClient) Stats() RPCStats {
	n := c.requestCount.Load()
	avg := int64(0)
	if n > 0 {
		avg = c.latencySum.Load() / n
	}
	return RPCStats{RequestCount: n, ErrorCount: c.errorCount.Load(), AvgLatencyUs: avg}
}

// StubAMMClient answers amm_info from memory.
type StubAMMClient struct {
	mu    sync.Mutex
	Pools map[Asset]*AMMInfo
	Err   error
	Calls []Asset
}

// NewStubAMMClient creates an empty stub.
func NewStubAMMClient() *StubAMMClient {
	return &StubAMMClient{Pools: make(map[Asset]*AMMInfo)}
}

// SetPool registers the pool returned for asset.
func (s *StubAMMClient) SetPool(asset Asset, info *AMMInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pools[asset] = info
}

func (s *StubAMMClient) AMMInfo(_ context.Context, asset, _ Asset) (*AMMInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, asset)
	if s.Err != nil {
		return nil, s.Err
	}
	info, ok := s.Pools[asset]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

// CallCount returns how many queries were made.
func (s *StubAMMClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
