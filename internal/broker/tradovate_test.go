package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestEnterPositionPlacesMarketOrder(t *testing.T) {
	var gotOrder orderRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/list":
			assert.Equal(t, "MESU5", r.URL.Query().Get("name"))
			_ = json.NewEncoder(w).Encode([]accountItem{{ID: 42, Name: "MESU5"}})
		case "/order/placeorder":
			gotAuth = r.Header.Get("Authorization")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotOrder))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"orderId": 1})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("tok-abc"), srv.Client(), testLogger())
	require.NoError(t, client.EnterPosition(context.Background(), 1, true))

	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, orderRequest{
		AccountSpec: "trader1",
		AccountID:   42,
		Action:      "Buy",
		Symbol:      "MESU5",
		OrderQty:    1,
		OrderType:   "Market",
		IsAutomated: true,
	}, gotOrder)

	require.NoError(t, client.EnterPosition(context.Background(), 1, false))
	assert.Equal(t, "Sell", gotOrder.Action)
}

func TestEnterPositionZeroQuantityIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	require.NoError(t, client.EnterPosition(context.Background(), 0, true))
}

func TestEmptyAccountListIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]accountItem{})
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	err := client.EnterPosition(context.Background(), 1, true)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestAccountIDIsCached(t *testing.T) {
	accountCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/list":
			accountCalls++
			_ = json.NewEncoder(w).Encode([]accountItem{{ID: 42}})
		case "/order/placeorder":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"orderId": 1})
		case "/position/list":
			_ = json.NewEncoder(w).Encode([]positionItem{})
		}
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	require.NoError(t, client.EnterPosition(context.Background(), 1, true))
	_, err := client.NetPosition(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.EnterPosition(context.Background(), 1, false))

	assert.Equal(t, 1, accountCalls)
}

func TestNetPositionFiltersByAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/list":
			_ = json.NewEncoder(w).Encode([]accountItem{{ID: 42}})
		case "/position/list":
			_ = json.NewEncoder(w).Encode([]positionItem{
				{AccountID: 7, NetPos: -3},
				{AccountID: 42, NetPos: 2},
			})
		}
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	net, err := client.NetPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, net)
}

func TestNetPositionFlatWhenNoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/list":
			_ = json.NewEncoder(w).Encode([]accountItem{{ID: 42}})
		case "/position/list":
			_ = json.NewEncoder(w).Encode([]positionItem{})
		}
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	net, err := client.NetPosition(context.Background())
	require.NoError(t, err)
	assert.Zero(t, net)
}

func TestNonSuccessStatusBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/account/list" {
			_ = json.NewEncoder(w).Encode([]accountItem{{ID: 42}})
			return
		}
		http.Error(w, "order rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewTradovateClient(srv.URL, "MESU5", "trader1", staticToken("t"), srv.Client(), testLogger())
	err := client.EnterPosition(context.Background(), 1, true)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Body, "order rejected")
}

func TestNoopBrokerTracksNetPosition(t *testing.T) {
	b := NewNoopBroker(testLogger())

	require.NoError(t, b.EnterPosition(context.Background(), 2, true))
	require.NoError(t, b.EnterPosition(context.Background(), 1, false))

	net, err := b.NetPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, net)
}

func TestTokenManagerStartAndRenew(t *testing.T) {
	var sawCreds map[string]interface{}
	renewAuth := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/accesstokenrequest":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&sawCreds))
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "first"})
		case "/auth/renewaccesstoken":
			renewAuth = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "second"})
		}
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, Credentials{
		Username: "u", Password: "p", ClientID: "app", CID: "1", Secret: "s",
	}, 0, srv.Client(), testLogger())

	require.NoError(t, tm.Start(context.Background()))
	assert.Equal(t, "first", tm.Token())
	assert.Equal(t, "u", sawCreds["name"])
	assert.Equal(t, "app", sawCreds["appId"])

	require.NoError(t, tm.refresh(context.Background()))
	assert.Equal(t, "Bearer first", renewAuth)
	assert.Equal(t, "second", tm.Token())
}

func TestTokenManagerKeepsTokenOnRenewFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/accesstokenrequest":
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "first"})
		case "/auth/renewaccesstoken":
			calls++
			http.Error(w, "expired session", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, Credentials{}, 0, srv.Client(), testLogger())
	require.NoError(t, tm.Start(context.Background()))

	err := tm.refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "first", tm.Token(), "failed renewal keeps the current token")
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := NewNoopBroker(testLogger())
	cb := NewCircuitBreakerBroker(inner, testLogger())

	require.NoError(t, cb.EnterPosition(context.Background(), 1, true))
	net, err := cb.NetPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, net)
}
