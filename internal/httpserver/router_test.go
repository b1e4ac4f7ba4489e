package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lv-tradecore/internal/httpserver"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/orders"
	tf "lv-tradecore/internal/testfixture"
	"lv-tradecore/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret        = "test-secret"
	issuer        = "identity"
	internalToken = "internal"
)

func token(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newServer(t *testing.T, f *tf.Fixture) http.Handler {
	tokens := httpserver.NewTokenParser(secret, issuer)
	return httpserver.NewRouter(httpserver.RouterDeps{
		OrderHandler:   orders.NewHandler(f.Orders),
		AccountHandler: httpserver.NewAccountHandler(f.Store, f.Engine),
		PriceHandler:   httpserver.NewPriceHandler(f.Quotes),
		Tokens:         tokens,
		InternalToken:  internalToken,
	})
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token(t, tf.AccountID, time.Minute)}
}

func TestPlaceAndListOrders(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	h := newServer(t, f)

	rec := do(h, http.MethodPost, "/v1/orders", `{"symbol":"EURUSD","side":"BUY","kind":"MARKET","quantity":"1"}`, bearer(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, types.OrderStatusOpen, o.Status)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(h, http.MethodGet, "/v1/orders", "", bearer(t))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(h, http.MethodPost, "/v1/orders/"+o.ID+"/close", "", bearer(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodPost, "/v1/orders/"+o.ID+"/close", "", bearer(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceErrorsMapToStatus(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	h := newServer(t, f)

	rec := do(h, http.MethodPost, "/v1/orders", `{"symbol":"EURUSD","side":"UP","kind":"MARKET","quantity":"1"}`, bearer(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/v1/orders", `{"symbol":"EURUSD","side":"BUY","kind":"MARKET","quantity":"50"}`, bearer(t))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(h, http.MethodGet, "/v1/orders/missing", "", bearer(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	h := newServer(t, f)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/orders", "", nil).Code)
	expired := map[string]string{"Authorization": "Bearer " + token(t, tf.AccountID, -time.Minute)}
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/orders", "", expired).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/internal/prices", `{"prices":{}}`, nil).Code)
}

func TestAccountValuation(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	h := newServer(t, f)
	f.Market(t, types.OrderSideBuy, "1")

	rec := do(h, http.MethodGet, "/v1/account", "", bearer(t))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Account   model.Account `json:"account"`
		Valuation struct {
			Margin   string `json:"margin"`
			Complete bool   `json:"complete"`
		} `json:"valuation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tf.AccountID, body.Account.ID)
	assert.Equal(t, "1100", body.Valuation.Margin)
	assert.True(t, body.Valuation.Complete)
}

func TestInternalPriceIngest(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	h := newServer(t, f)
	hdr := map[string]string{"X-Internal-Token": internalToken}

	rec := do(h, http.MethodPost, "/v1/internal/prices", `{"prices":{"gbpusd":{"bid":"1.2500"}}}`, hdr)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	q, ok := f.Quotes.Quote("GBPUSD")
	require.True(t, ok)
	assert.Equal(t, "1.25", q.Bid.String())
	assert.True(t, q.Ask.GreaterThan(q.Bid))
}

func TestInternalBridgeConfirmation(t *testing.T) {
	f := tf.New(t, types.RoutingBridge)
	h := newServer(t, f)
	o := f.Market(t, types.OrderSideBuy, "1")
	hdr := map[string]string{"X-Internal-Token": internalToken}

	rec := do(h, http.MethodPost, "/v1/internal/bridge/confirmations", `{"correlation_id":"`+o.CorrelationID+`","status":"OPEN","price":"1.1"}`, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.OrderStatusOpen, f.Order(t, o.ID).Status)

	rec = do(h, http.MethodPost, "/v1/internal/bridge/confirmations", `{"correlation_id":"x","status":"DONE"}`, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVisible(t *testing.T) {
	assert.True(t, httpserver.Visible(marketdata.Event{Type: marketdata.EventQuotes}, "a"))
	assert.True(t, httpserver.Visible(marketdata.Event{Type: marketdata.EventOrder, AccountID: "a"}, "a"))
	assert.False(t, httpserver.Visible(marketdata.Event{Type: marketdata.EventOrder, AccountID: "b"}, "a"))
}

func TestWebSocketSendsValuationThenAccountEvents(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	bus := marketdata.NewBus()
	tokens := httpserver.NewTokenParser(secret, issuer)
	srv := httptest.NewServer(httpserver.NewWSHandler(bus, tokens, f.Engine, "*"))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token(t, tf.AccountID, time.Minute)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first marketdata.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, marketdata.EventValuation, first.Type)
	assert.Equal(t, tf.AccountID, first.AccountID)

	// The subscription is registered before the snapshot is written.
	bus.Publish(marketdata.Event{Type: marketdata.EventOrder, AccountID: "someone-else"})
	bus.Publish(marketdata.Event{Type: marketdata.EventOrder, AccountID: tf.AccountID})
	var next marketdata.Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, marketdata.EventOrder, next.Type)
	assert.Equal(t, tf.AccountID, next.AccountID)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(httpserver.NewWSHandler(marketdata.NewBus(), httpserver.NewTokenParser(secret, issuer), nil, "*"))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := httpserver.NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(h, http.MethodGet, "/", "", nil).Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
