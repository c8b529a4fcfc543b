package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned by calls on a closed WebSocket client.
var ErrClientClosed = errors.New("websocket client closed")

var wsLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	wsLog = zerolog.New(out).With().Timestamp().Str("component", "solana-ws").Logger()
}

// SetLogger replaces the WebSocket client logger.
func SetLogger(l zerolog.Logger) {
	wsLog = l
}

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds a single read.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	// Buffer is the per-subscription notification buffer. Notifications
	// arriving while the buffer is full are dropped.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Buffer:            64,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
// It reconnects with exponential backoff and re-issues every active
// subscription on the new connection.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	mu sync.Mutex
	// subs maps the server subscription id to its subscription.
	subs map[int64]*logSubscription
	// pending maps a request id to the waiter for its subscription id.
	pending map[uint64]chan subscribeResult

	dropped atomic.Uint64

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

type logSubscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

type subscribeResult struct {
	id  int64
	err error
}

// NewWSClient dials endpoint and starts the read and ping loops.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		subs:     make(map[int64]*logSubscription),
		pending:  make(map[uint64]chan subscribeResult),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

func (c *WSClientImpl) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs implements WSClient.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	id, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &logSubscription{
		filter: filter,
		ch:     make(chan LogNotification, c.config.Buffer),
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.subs[id] = sub
	c.mu.Unlock()

	return sub.ch, nil
}

// Dropped reports how many notifications were discarded on full buffers.
func (c *WSClientImpl) Dropped() uint64 {
	return c.dropped.Load()
}

// subscribe sends logsSubscribe and waits for the subscription id.
func (c *WSClientImpl) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	waiter := make(chan subscribeResult, 1)

	c.mu.Lock()
	c.pending[reqID] = waiter
	c.mu.Unlock()

	if err := c.writeJSON(newLogsSubscribeRequest(reqID, filter)); err != nil {
		c.forgetPending(reqID)
		return 0, fmt.Errorf("write logsSubscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-waiter:
		if !ok {
			return 0, ErrClientClosed
		}
		return res.id, res.err
	case <-timer.C:
		c.forgetPending(reqID)
		return 0, fmt.Errorf("logsSubscribe: no response after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		c.forgetPending(reqID)
		return 0, ctx.Err()
	}
}

func (c *WSClientImpl) forgetPending(reqID uint64) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

func newLogsSubscribeRequest(id uint64, filter LogsFilter) wsRequest {
	var selector interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions := make([]string, len(filter.Mentions))
		for i, m := range filter.Mentions {
			mentions[i] = m.String()
		}
		selector = map[string][]string{"mentions": mentions}
	}

	commitment := filter.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}

	return wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []interface{}{
			selector,
			map[string]string{"commitment": commitment},
		},
	}
}

// Close implements WSClient.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	return nil
}

func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	backoff := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			wsLog.Warn().Err(err).Dur("backoff", backoff).Msg("websocket read failed, reconnecting")

			if !c.reconnecting.Swap(true) {
				go c.reconnect(conn, backoff)
			}
			backoff *= 2
			if backoff > c.config.MaxReconnectDelay {
				backoff = c.config.MaxReconnectDelay
			}
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		backoff = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// sleep waits d or until close; false means the client closed.
func (c *WSClientImpl) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

// reconnect replaces the broken connection and re-issues subscriptions.
func (c *WSClientImpl) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	if !c.sleep(delay) {
		return
	}

	c.connMu.Lock()
	if c.conn == broken {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		wsLog.Warn().Err(err).Msg("websocket reconnect failed")
		return
	}

	c.resubscribeAll()
}

func (c *WSClientImpl) resubscribeAll() {
	c.mu.Lock()
	old := make(map[int64]*logSubscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.mu.Unlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()
		if err != nil {
			wsLog.Warn().Err(err).Int64("subscription", oldID).Msg("resubscribe failed")
			continue
		}

		c.mu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.mu.Unlock()
	}
}

func (c *WSClientImpl) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		wsLog.Debug().Err(err).Msg("unparseable websocket message")
		return
	}

	switch {
	case env.Method == "logsNotification" && env.Params != nil:
		c.dispatch(env.Params)
	case env.ID != nil:
		c.resolvePending(*env.ID, env)
	}
}

func (c *WSClientImpl) resolvePending(reqID uint64, env wsEnvelope) {
	c.mu.Lock()
	waiter, ok := c.pending[reqID]
	delete(c.pending, reqID)
	c.mu.Unlock()
	if !ok {
		return
	}

	var res subscribeResult
	switch {
	case env.Error != nil:
		res.err = fmt.Errorf("logsSubscribe: code=%d: %s", env.Error.Code, env.Error.Message)
	case env.Result == nil:
		res.err = errors.New("logsSubscribe: empty result")
	default:
		if err := json.Unmarshal(env.Result, &res.id); err != nil {
			res.err = fmt.Errorf("logsSubscribe: decode subscription id: %w", err)
		}
	}
	waiter <- res
}

func (c *WSClientImpl) dispatch(params *wsNotificationParams) {
	value := params.Result.Value
	n := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Failed:    len(value.Err) > 0 && string(value.Err) != "null",
	}
	if params.Result.Context != nil {
		n.Slot = params.Result.Context.Slot
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[params.Subscription]
	if !ok || c.closed.Load() {
		return
	}
	select {
	case sub.ch <- n:
	default:
		c.dropped.Add(1)
	}
}

func (c *WSClientImpl) pingLoop() {
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
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error in readLoop.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers responses and notifications.
type wsEnvelope struct {
	ID     *uint64               `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Error  *RPCError             `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string          `json:"signature"`
			Logs      []string        `json:"logs"`
			Err       json.RawMessage `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
