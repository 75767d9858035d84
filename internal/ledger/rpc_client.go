package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 0
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// JSON-RPC error code the ledger uses for ids outside the assigned range.
const codeItemNotFound = -32004

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
// Reads are retried with exponential backoff only when WithMaxRetries is
// set; writes are always sent exactly once.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for reads.
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

// NewHTTPClient creates a new ledger JSON-RPC client.
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

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

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
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// txParams is the first parameter of every write call.
type txParams struct {
	From  string `json:"from"`
	Value string `json:"value,omitempty"`
}

func newTxParams(tx TxOpts) txParams {
	p := txParams{From: string(tx.From)}
	if !tx.Value.IsZero() {
		p.Value = tx.Value.String()
	}
	return p
}

// call performs a JSON-RPC call, retrying transport failures up to retries times.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}, retries int) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

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

	for attempt := 0; attempt <= retries; attempt++ {
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

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			if rpcResp.Error.Code == codeItemNotFound {
				return fmt.Errorf("%s: %w", method, domain.ErrNotFound)
			}
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) read(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.call(ctx, method, params, result, c.maxRetries)
}

func (c *HTTPClient) write(ctx context.Context, method string, tx TxOpts, args ...interface{}) (string, error) {
	params := append([]interface{}{newTxParams(tx)}, args...)
	var txHash string
	if err := c.call(ctx, method, params, &txHash, 0); err != nil {
		return "", err
	}
	return txHash, nil
}

// ItemsCount returns the highest assigned item id.
func (c *HTTPClient) ItemsCount(ctx context.Context) (int64, error) {
	var result flexInt
	if err := c.read(ctx, "market_itemsCount", nil, &result); err != nil {
		return 0, err
	}
	return int64(result), nil
}

// GetItem retrieves an item by id.
func (c *HTTPClient) GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	var result getItemResult
	if err := c.read(ctx, "market_getItem", []interface{}{domain.ItemIDString(id)}, &result); err != nil {
		return nil, err
	}

	if result.ID == 0 {
		// Empty record: id never assigned
		return nil, fmt.Errorf("market_getItem %d: %w", id, domain.ErrNotFound)
	}

	return &domain.Item{
		ID:                result.ID,
		Owner:             result.Owner,
		OfferAddress:      result.OfferAddress,
		State:             result.State,
		InitialValue:      result.InitialValue,
		MaxValue:          result.MaxValue,
		CurrentOfferValue: result.OfferValue,
		FinishDate:        int64(result.FinishDate),
		ContentHash:       result.IPFSHash,
	}, nil
}

// getItemResult is the raw RPC response for market_getItem.
type getItemResult struct {
	ID           domain.ItemID   `json:"itemId"`
	Owner        domain.Address  `json:"owner"`
	OfferAddress domain.Address  `json:"offerAddress"`
	State        domain.State    `json:"state"`
	InitialValue decimal.Decimal `json:"initialValue"`
	MaxValue     decimal.Decimal `json:"maxValue"`
	OfferValue   decimal.Decimal `json:"offerValue"`
	FinishDate   flexInt         `json:"finishDate"`
	IPFSHash     string          `json:"ipfsHash"`
}

// flexInt decodes unsigned ledger integers sent either as numbers or strings.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", data, err)
	}
	*n = flexInt(v)
	return nil
}

// Owner returns the ledger contract owner.
func (c *HTTPClient) Owner(ctx context.Context) (domain.Address, error) {
	var result string
	if err := c.read(ctx, "market_owner", nil, &result); err != nil {
		return "", err
	}
	return domain.Address(result), nil
}

// PublicationCost returns the current publication fee.
func (c *HTTPClient) PublicationCost(ctx context.Context) (decimal.Decimal, error) {
	var result decimal.Decimal
	if err := c.read(ctx, "market_publicationCost", nil, &result); err != nil {
		return decimal.Zero, err
	}
	return result, nil
}

// PublishItem submits a new publication.
func (c *HTTPClient) PublishItem(ctx context.Context, tx TxOpts, contentHash string, initialValue, maxValue decimal.Decimal) (string, error) {
	return c.write(ctx, "market_publishItem", tx, contentHash, initialValue.String(), maxValue.String())
}

// OfferItem submits an offer. tx.Value is the escrowed upper bound.
func (c *HTTPClient) OfferItem(ctx context.Context, tx TxOpts, id domain.ItemID, offerValue decimal.Decimal) (string, error) {
	return c.write(ctx, "market_offerItem", tx, domain.ItemIDString(id), offerValue.String())
}

// ClaimFunds claims the funds of a finished item.
func (c *HTTPClient) ClaimFunds(ctx context.Context, tx TxOpts, id domain.ItemID) (string, error) {
	return c.write(ctx, "market_claimFunds", tx, domain.ItemIDString(id))
}

// TransferOwnership changes the ledger contract owner.
func (c *HTTPClient) TransferOwnership(ctx context.Context, tx TxOpts, newOwner domain.Address) (string, error) {
	return c.write(ctx, "market_transferOwnership", tx, string(newOwner))
}

// SetPublicationCost changes the publication fee.
func (c *HTTPClient) SetPublicationCost(ctx context.Context, tx TxOpts, newCost decimal.Decimal) (string, error) {
	return c.write(ctx, "market_setPublicationCost", tx, newCost.String())
}
