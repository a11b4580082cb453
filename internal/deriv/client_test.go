package deriv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"parity/internal/config"
	"parity/internal/market"
)

func testDerivConfig(endpoint string) config.DerivConfig {
	return config.DerivConfig{
		Endpoint:              endpoint,
		AppID:                 "1089",
		Token:                 "test-token",
		AccountType:           "demo",
		Symbol:                "R_100",
		Currency:              "USD",
		RequestTimeoutSeconds: 5,
		ConnectAttempts:       1,
		ReconnectAttempts:     1,
		SettleTimeoutSeconds:  5,
	}
}

// newWSServer runs handler on each upgraded connection and returns the ws://
// endpoint to dial.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoServer answers every frame through respond, which maps the inbound
// frame to zero or more response frames. The req_id is echoed automatically.
func echoServer(t *testing.T, respond func(req gjson.Result) []string) func(conn *websocket.Conn) {
	t.Helper()
	return func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req := gjson.ParseBytes(raw)
			for _, frame := range respond(req) {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}
	}
}

func connectedClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c := NewClient(testDerivConfig(endpoint))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectRetriesThenFails(t *testing.T) {
	cfg := testDerivConfig("ws://127.0.0.1:1") // nothing listens here
	cfg.ConnectAttempts = 2
	c := NewClient(cfg)

	dials := 0
	c.SetDialFunc(func(ctx context.Context, url string) (*websocket.Conn, error) {
		dials++
		return nil, fmt.Errorf("refused")
	})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 2, dials)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRequestCorrelation(t *testing.T) {
	// The server answers the two in-flight requests in reverse order; each
	// caller must still receive its own response.
	var mu sync.Mutex
	var held []gjson.Result

	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		mu.Lock()
		defer mu.Unlock()
		held = append(held, req)
		if len(held) < 2 {
			return nil
		}
		frames := make([]string, 0, 2)
		for i := len(held) - 1; i >= 0; i-- {
			frames = append(frames, fmt.Sprintf(`{"req_id":%d,"echo":%q}`,
				held[i].Get("req_id").Int(), held[i].Get("tag").String()))
		}
		held = nil
		return frames
	}))
	c := connectedClient(t, endpoint)

	var wg sync.WaitGroup
	for _, tag := range []string{"first", "second"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			raw, err := c.Request(context.Background(), map[string]any{"tag": tag}, 5*time.Second)
			assert.NoError(t, err)
			assert.Equal(t, tag, gjson.GetBytes(raw, "echo").String())
		}(tag)
	}
	wg.Wait()
}

func TestRequestTimeoutDropsSlot(t *testing.T) {
	release := make(chan struct{})
	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		if req.Get("slow").Exists() {
			<-release
			return []string{fmt.Sprintf(`{"req_id":%d,"echo":"stale"}`, req.Get("req_id").Int())}
		}
		return []string{fmt.Sprintf(`{"req_id":%d,"echo":"fresh"}`, req.Get("req_id").Int())}
	}))
	c := connectedClient(t, endpoint)

	_, err := c.Request(context.Background(), map[string]any{"slow": 1}, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimeout)

	// Let the stale response arrive, then confirm the next request is not
	// poisoned by it.
	close(release)
	raw, err := c.Request(context.Background(), map[string]any{"tag": "next"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", gjson.GetBytes(raw, "echo").String())
}

func authorizeServer(t *testing.T, isVirtual int) string {
	return newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		if !req.Get("authorize").Exists() {
			return nil
		}
		return []string{fmt.Sprintf(
			`{"req_id":%d,"msg_type":"authorize","authorize":{"loginid":"VRTC123","balance":10000,"currency":"USD","is_virtual":%d}}`,
			req.Get("req_id").Int(), isVirtual)}
	}))
}

func TestAuthenticateDemo(t *testing.T) {
	c := connectedClient(t, authorizeServer(t, 1))

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "VRTC123", c.Account().LoginID)
	assert.True(t, c.Account().Virtual())
}

func TestAuthenticateSafetyViolation(t *testing.T) {
	// Demo expected but the token resolves to a real account: the client
	// must disconnect before anything can trade.
	c := connectedClient(t, authorizeServer(t, 0))

	err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrSafetyViolation)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestAuthenticateRealExpectsReal(t *testing.T) {
	endpoint := authorizeServer(t, 1)
	cfg := testDerivConfig(endpoint)
	cfg.AccountType = "real"
	c := NewClient(cfg)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrSafetyViolation)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestTickFanOut(t *testing.T) {
	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		if !req.Get("ticks").Exists() {
			return nil
		}
		return []string{
			`{"msg_type":"tick","tick":{"symbol":"R_100","quote":100.10,"epoch":1700000001}}`,
			`{"msg_type":"tick","tick":{"symbol":"R_100","quote":100.17,"epoch":1700000002}}`,
		}
	}))
	c := connectedClient(t, endpoint)

	received := make(chan market.Tick, 4)
	panicky := func(tick market.Tick) { panic("boom") }
	require.NoError(t, c.SubscribeTicks(context.Background(), "R_100", panicky))
	require.NoError(t, c.SubscribeTicks(context.Background(), "R_100", func(tick market.Tick) {
		received <- tick
	}))

	var ticks []market.Tick
	for i := 0; i < 2; i++ {
		select {
		case tick := <-received:
			ticks = append(ticks, tick)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for ticks")
		}
	}

	// A panicking subscriber must not block the others, order is preserved,
	// and the trailing zero of 100.10 survives into the digit.
	assert.Equal(t, 0, ticks[0].LastDigit)
	assert.False(t, ticks[0].IsOdd)
	assert.Equal(t, "100.10", ticks[0].QuoteText())
	assert.Equal(t, 7, ticks[1].LastDigit)
	assert.True(t, ticks[1].IsOdd)
	assert.Equal(t, int64(1700000001), ticks[0].Epoch)
}

func TestDisconnectFailsPending(t *testing.T) {
	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		return nil // never answer
	}))
	c := connectedClient(t, endpoint)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), map[string]any{"tag": "doomed"}, 30*time.Second)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond) // let the request register its slot
	c.Disconnect()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request was not failed on disconnect")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestHealthCheck(t *testing.T) {
	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		if !req.Get("ping").Exists() {
			return nil
		}
		return []string{fmt.Sprintf(`{"req_id":%d,"msg_type":"ping","ping":"pong"}`, req.Get("req_id").Int())}
	}))
	c := connectedClient(t, endpoint)

	assert.True(t, c.HealthCheck(context.Background()))

	c.Disconnect()
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestRequestRequiresConnection(t *testing.T) {
	c := NewClient(testDerivConfig("ws://127.0.0.1:1"))
	_, err := c.Request(context.Background(), map[string]any{"ping": 1}, time.Second)
	assert.ErrorIs(t, err, ErrNotReady)

	err = c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.Balance(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBuyGuards(t *testing.T) {
	c := connectedClient(t, authorizeServer(t, 1))
	require.NoError(t, c.Authenticate(context.Background()))

	_, err := c.Buy(context.Background(), BuyParams{ContractType: "DIGITEVEN", Stake: 0})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestAPIErrorDecoding(t *testing.T) {
	endpoint := newWSServer(t, echoServer(t, func(req gjson.Result) []string {
		return []string{fmt.Sprintf(
			`{"req_id":%d,"msg_type":"balance","error":{"code":"AuthorizationRequired","message":"Please log in."}}`,
			req.Get("req_id").Int())}
	}))
	c := connectedClient(t, endpoint)

	raw, err := c.Request(context.Background(), map[string]any{"balance": 1}, 5*time.Second)
	require.NoError(t, err)

	var info BalanceInfo
	err = decodePayload(raw, "balance", &info)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "AuthorizationRequired", apiErr.Code)
}
