package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"parity/internal/config"
	"parity/internal/logger"
	"parity/internal/market"
)

// State is the session lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// TickHandler receives fanned-out tick events in registration order.
type TickHandler func(tick market.Tick)

type pendingResult struct {
	raw []byte
	err error
}

// Client owns one persistent websocket session to the broker. Two concurrent
// activities share it: the receive loop (sole completer of correlation
// slots) and request senders, each waiting on its own one-shot channel. The
// pending map is the only shared mutable state and is guarded by mu.
type Client struct {
	cfg config.DerivConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	nextID  int64
	pending map[int64]chan pendingResult
	subs    []TickHandler
	account Authorize

	dialFn func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewClient(cfg config.DerivConfig) *Client {
	c := &Client{
		cfg:     cfg,
		pending: make(map[int64]chan pendingResult),
	}
	c.dialFn = func(ctx context.Context, url string) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		return conn, err
	}
	return c
}

// SetDialFunc overrides the transport dial; test hook.
func (c *Client) SetDialFunc(fn func(ctx context.Context, url string) (*websocket.Conn, error)) {
	if fn != nil {
		c.dialFn = fn
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Account() Authorize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Client) url() string {
	return fmt.Sprintf("%s?app_id=%s", c.cfg.Endpoint, c.cfg.AppID)
}

// Connect dials with bounded exponential backoff and starts the receive
// loop. Backoff starts at one second and doubles per failed attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected (state %s)", ErrConnection, c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	var lastErr error
	delay := time.Second
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		logger.Infof("connecting to broker (attempt %d/%d)", attempt, c.cfg.ConnectAttempts)
		conn, err := c.dialFn(ctx, c.url())
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.state = StateConnected
			c.mu.Unlock()
			go c.readLoop(conn)
			go c.keepAlive(conn)
			logger.Infof("websocket connection established")
			return nil
		}
		lastErr = err
		logger.Errorf("connection attempt %d failed: %v", attempt, err)
		if attempt < c.cfg.ConnectAttempts {
			select {
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	c.setState(StateDisconnected)
	return fmt.Errorf("%w: all %d attempts failed: %v", ErrConnection, c.cfg.ConnectAttempts, lastErr)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Authenticate authorizes the session and enforces the account-class
// expectation. A demo expectation met by a real account is a safety
// violation: the client disconnects before returning.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.State() == StateDisconnected || c.State() == StateConnecting {
		return fmt.Errorf("%w: must connect before authenticating", ErrNotReady)
	}

	raw, err := c.Request(ctx, map[string]any{"authorize": c.cfg.Token}, c.cfg.RequestTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	var account Authorize
	if err := decodePayload(raw, "authorize", &account); err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if c.cfg.WantsVirtual() && !account.Virtual() {
		logger.Errorf("SAFETY BREACH: expected demo account but got real account %s", account.LoginID)
		c.Disconnect()
		return fmt.Errorf("%w: demo account required but real account detected", ErrSafetyViolation)
	}
	if !c.cfg.WantsVirtual() && account.Virtual() {
		logger.Errorf("configuration error: expected real account but got demo account %s", account.LoginID)
		c.Disconnect()
		return fmt.Errorf("%w: real account required but demo account detected", ErrSafetyViolation)
	}

	c.mu.Lock()
	c.account = account
	c.state = StateAuthenticated
	c.mu.Unlock()

	class := "real"
	if account.Virtual() {
		class = "demo"
	}
	logger.Infof("authenticated: %s account %s, balance %.2f %s",
		class, account.LoginID, account.Balance, account.Currency)
	return nil
}

// Request sends one correlated request and waits for its response frame.
// The req_id is injected here; the caller's payload must not set one. On
// timeout the slot is removed so a late response is dropped, not delivered
// to a future request.
func (c *Client) Request(ctx context.Context, payload map[string]any, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	c.nextID++
	reqID := c.nextID
	slot := make(chan pendingResult, 1)
	c.pending[reqID] = slot
	conn := c.conn
	c.mu.Unlock()

	payload["req_id"] = reqID
	if err := c.writeJSON(conn, payload); err != nil {
		c.dropSlot(reqID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-slot:
		if res.err != nil {
			return nil, res.err
		}
		return res.raw, nil
	case <-timer.C:
		c.dropSlot(reqID)
		logger.Errorf("request %d timed out after %s", reqID, timeout)
		return nil, fmt.Errorf("%w: req_id=%d after %s", ErrRequestTimeout, reqID, timeout)
	case <-ctx.Done():
		c.dropSlot(reqID)
		return nil, ctx.Err()
	}
}

func (c *Client) dropSlot(reqID int64) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

func (c *Client) writeJSON(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrProtocol, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrConnectionLost
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// readLoop is the sole consumer of inbound frames and the sole completer of
// correlation slots. Frames with a pending req_id complete their slot;
// subscription frames carrying a tick fan out to subscribers; anything else
// is logged at debug and dropped.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Warnf("websocket connection closed: %v", err)
			c.failPending(ErrConnectionLost)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			return
		}
		c.dispatch(raw)
	}
}

// keepAlive sends protocol-level pings while the connection is current.
// Application-level health is probed separately via HealthCheck.
func (c *Client) keepAlive(conn *websocket.Conn) {
	interval := c.cfg.PingInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		active := c.conn == conn
		c.mu.Unlock()
		if !active {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			return
		}
	}
}

func (c *Client) dispatch(raw []byte) {
	if reqID := gjson.GetBytes(raw, "req_id"); reqID.Exists() {
		c.mu.Lock()
		slot, ok := c.pending[reqID.Int()]
		if ok {
			delete(c.pending, reqID.Int())
		}
		c.mu.Unlock()
		if ok {
			slot <- pendingResult{raw: raw}
			return
		}
	}

	if gjson.GetBytes(raw, "tick").Exists() {
		c.handleTick(raw)
		return
	}

	if msgType := gjson.GetBytes(raw, "msg_type"); msgType.Exists() {
		logger.Debugf("unsolicited %s message dropped", msgType.String())
	}
}

func (c *Client) handleTick(raw []byte) {
	node := gjson.GetBytes(raw, "tick")
	// The last digit is derived from the quote exactly as the broker rendered
	// it. Number literals are taken verbatim from the frame: reformatting
	// through a float would drop trailing zeros and shift the digit.
	q := node.Get("quote")
	text := q.String()
	if q.Type == gjson.Number {
		text = q.Raw
	}
	quote, err := decimal.NewFromString(text)
	if err != nil {
		logger.Errorf("tick quote parse failed: %v", err)
		return
	}
	tick := market.NewTick(node.Get("symbol").String(), quote, node.Get("epoch").Int(), time.Now())

	c.mu.Lock()
	subs := make([]TickHandler, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	// Subscriber failures are isolated: one panicking handler must not take
	// down the receive loop or starve later subscribers.
	for _, handler := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("tick subscriber panic: %v", r)
				}
			}()
			handler(tick)
		}()
	}
}

// SubscribeTicks registers a handler and opens the tick stream. Handlers are
// invoked in registration order on the receive loop.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string, handler TickHandler) error {
	if c.State() == StateDisconnected || c.State() == StateConnecting {
		return fmt.Errorf("%w: must connect before subscribing", ErrNotReady)
	}
	c.mu.Lock()
	if handler != nil {
		c.subs = append(c.subs, handler)
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}

	if err := c.writeJSON(conn, map[string]any{"ticks": symbol, "subscribe": 1}); err != nil {
		return err
	}
	if c.State() == StateAuthenticated {
		c.setState(StateStreaming)
	}
	logger.Infof("subscribed to ticks for %s", symbol)
	return nil
}

// Balance fetches the current account balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if st := c.State(); st != StateAuthenticated && st != StateStreaming {
		return 0, fmt.Errorf("%w: must authenticate before fetching balance", ErrNotReady)
	}
	raw, err := c.Request(ctx, map[string]any{"balance": 1}, c.cfg.RequestTimeout())
	if err != nil {
		return 0, err
	}
	var info BalanceInfo
	if err := decodePayload(raw, "balance", &info); err != nil {
		return 0, err
	}
	return info.Balance, nil
}

// Proposal quotes a one-tick contract at the minimum meaningful stake and
// reports the implied payout ratio.
func (c *Client) Proposal(ctx context.Context, contractType string) (ProposalInfo, error) {
	payload := map[string]any{
		"proposal":      1,
		"amount":        1,
		"basis":         "stake",
		"contract_type": contractType,
		"currency":      c.cfg.Currency,
		"symbol":        c.cfg.Symbol,
		"duration":      1,
		"duration_unit": "t",
	}
	raw, err := c.Request(ctx, payload, c.cfg.RequestTimeout())
	if err != nil {
		return ProposalInfo{}, err
	}
	var info ProposalInfo
	if err := decodePayload(raw, "proposal", &info); err != nil {
		return ProposalInfo{}, err
	}
	if info.AskPrice > 0 {
		info.PayoutRatio = info.Payout / info.AskPrice
	}
	return info, nil
}

// Buy places one contract. The configured account class is re-checked here:
// live orders against a real account while expecting demo must never leave
// the process.
func (c *Client) Buy(ctx context.Context, params BuyParams) (BuyInfo, error) {
	if st := c.State(); st != StateAuthenticated && st != StateStreaming {
		return BuyInfo{}, fmt.Errorf("%w: must authenticate before trading", ErrNotReady)
	}
	if c.cfg.WantsVirtual() && !c.Account().Virtual() {
		return BuyInfo{}, fmt.Errorf("%w: refusing to trade on a real account", ErrSafetyViolation)
	}
	if params.Stake <= 0 {
		return BuyInfo{}, fmt.Errorf("%w: stake must be positive", ErrProtocol)
	}
	if params.Currency == "" {
		params.Currency = c.cfg.Currency
	}
	if params.Symbol == "" {
		params.Symbol = c.cfg.Symbol
	}
	if params.Duration == 0 {
		params.Duration = 1
		params.DurationUnit = "t"
	}

	raw, err := c.Request(ctx, params.request(), c.cfg.RequestTimeout())
	if err != nil {
		return BuyInfo{}, err
	}
	var info BuyInfo
	if err := decodePayload(raw, "buy", &info); err != nil {
		return BuyInfo{}, err
	}
	logger.Infof("trade placed: %s $%.2f contract %d", params.ContractType, params.Stake, info.ContractID)
	return info, nil
}

// ContractStatus fetches the settlement view of a contract.
func (c *Client) ContractStatus(ctx context.Context, contractID int64) (ContractStatusInfo, error) {
	payload := map[string]any{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
	}
	raw, err := c.Request(ctx, payload, c.cfg.RequestTimeout())
	if err != nil {
		return ContractStatusInfo{}, err
	}
	var info ContractStatusInfo
	if err := decodePayload(raw, "proposal_open_contract", &info); err != nil {
		return ContractStatusInfo{}, err
	}
	return info, nil
}

// HealthCheck pings the session; healthy means a pong came back in time.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if c.State() == StateDisconnected {
		return false
	}
	raw, err := c.Request(ctx, map[string]any{"ping": 1}, 5*time.Second)
	if err != nil {
		logger.Errorf("health check failed: %v", err)
		return false
	}
	return gjson.GetBytes(raw, "ping").Exists() || gjson.GetBytes(raw, "pong").Exists()
}

// Disconnect closes the session and fails every in-flight request with
// ErrConnectionLost. Safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.failPending(ErrConnectionLost)

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
		logger.Infof("websocket disconnected")
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	slots := c.pending
	c.pending = make(map[int64]chan pendingResult)
	c.mu.Unlock()
	for _, slot := range slots {
		slot <- pendingResult{err: err}
	}
}
