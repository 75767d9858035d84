package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the notification channel capacity.
	BufferSize int
	// Logger receives transport errors. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		BufferSize:       1000,
	}
}

// WSClient implements EventFeed using gorilla/websocket.
// Connection loss ends the feed; reconnection belongs to the caller.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// sub is the active subscription channel, nil until subscribed
	sub   chan Notification
	subID int64
	subMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// Compile-time interface check.
var _ EventFeed = (*WSClient)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeEvents subscribes to the ledger's combined event stream.
// Only one subscription per client is allowed.
func (c *WSClient) SubscribeEvents(ctx context.Context) (<-chan Notification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	c.subMu.Lock()
	if c.sub != nil {
		c.subMu.Unlock()
		return nil, fmt.Errorf("already subscribed")
	}
	// Reserve the channel before the confirmation so no notification is lost
	ch := make(chan Notification, c.config.BufferSize)
	c.sub = ch
	c.subMu.Unlock()

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "market_subscribe",
		Params:  []interface{}{"allEvents"},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	fail := func(err error) (<-chan Notification, error) {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		c.subMu.Lock()
		c.sub = nil
		c.subMu.Unlock()
		return nil, err
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return fail(fmt.Errorf("not connected"))
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		return fail(fmt.Errorf("write subscribe: %w", err))
	}

	select {
	case _, ok := <-confirmCh:
		if !ok {
			return fail(fmt.Errorf("client closed"))
		}
	case <-time.After(c.config.SubscribeTimeout):
		return fail(fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout))
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	return ch, nil
}

// Close closes the WebSocket connection and the subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	c.shutdown()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// shutdown signals goroutines to stop and releases channels. Safe to call twice.
func (c *WSClient) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
	})

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()
}

// readLoop reads messages from WebSocket and dispatches to the subscriber.
// A read error ends the feed.
func (c *WSClient) readLoop() {
	defer c.wg.Done()
	defer c.closeSubscription()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Printf("[ws] feed ended: %v", err)
			c.deliver(Notification{Err: fmt.Errorf("read feed: %w", err)})
			c.shutdown()
			return
		}

		c.handleMessage(message)
	}
}

// closeSubscription closes the subscriber channel once the reader is gone.
func (c *WSClient) closeSubscription() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub != nil {
		close(c.sub)
		c.sub = nil
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "market_subscription" {
		c.handleEventNotification(&notif)
		return
	}

	// Check for error response
	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Subscription will time out
		c.logger.Printf("[ws] error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		return
	}

	c.deliver(Notification{Err: fmt.Errorf("unrecognized feed message: %.120s", message)})
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		// Set before the next message is read so foreign notifications are filtered
		c.subMu.Lock()
		c.subID = resp.Result
		c.subMu.Unlock()

		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleEventNotification decodes a ledger event and forwards it.
func (c *WSClient) handleEventNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subMu.Lock()
	subID := c.subID
	c.subMu.Unlock()
	if subID != 0 && notif.Params.Subscription != subID {
		return
	}

	result := notif.Params.Result
	ev, err := domain.DecodeEvent(result.Event, result.ReturnValues)
	if err != nil {
		c.deliver(Notification{Err: err, BlockNumber: result.BlockNumber, TxHash: result.TransactionHash})
		return
	}

	c.deliver(Notification{
		Event:       ev,
		BlockNumber: result.BlockNumber,
		TxHash:      result.TransactionHash,
	})
}

// deliver sends n to the subscriber. Blocks rather than dropping events.
func (c *WSClient) deliver(n Notification) {
	c.subMu.Lock()
	ch := c.sub
	c.subMu.Unlock()
	if ch == nil {
		return
	}
	observability.RecordFeedDelivery(n.Err)

	select {
	case ch <- n:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64         `json:"subscription"`
	Result       wsEventResult `json:"result"`
}

type wsEventResult struct {
	Event           string          `json:"event"`
	ReturnValues    json.RawMessage `json:"returnValues"`
	BlockNumber     int64           `json:"blockNumber"`
	TransactionHash string          `json:"transactionHash"`
}
