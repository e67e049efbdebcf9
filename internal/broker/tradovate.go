package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenSource provides the current broker access token. Implemented by
// TokenManager; a fixed-string implementation suffices for tests.
type TokenSource interface {
	Token() string
}

// TradovateClient places market orders against the Tradovate REST API.
// The account id is resolved lazily on first use and cached.
type TradovateClient struct {
	apiURL   string
	symbol   string
	username string
	tokens   TokenSource
	client   *http.Client
	logger   *logrus.Logger

	mu        sync.Mutex
	accountID int64
	resolved  bool
}

// NewTradovateClient creates a Tradovate broker client. symbol is the
// futures contract (e.g. "MESU5"); username is the accountSpec sent with
// each order.
func NewTradovateClient(apiURL, symbol, username string, tokens TokenSource,
	client *http.Client, logger *logrus.Logger) *TradovateClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TradovateClient{
		apiURL:   strings.TrimRight(apiURL, "/"),
		symbol:   symbol,
		username: username,
		tokens:   tokens,
		client:   client,
		logger:   logger,
	}
}

type accountItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ensureAccountID resolves and caches the account id. An empty account list
// is fatal: ErrNoAccounts.
func (t *TradovateClient) ensureAccountID(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return t.accountID, nil
	}

	params := url.Values{}
	params.Set("name", t.symbol)
	var accounts []accountItem
	if err := t.makeRequestCtx(ctx, http.MethodGet,
		t.apiURL+"/account/list?"+params.Encode(), nil, &accounts); err != nil {
		return 0, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return 0, ErrNoAccounts
	}

	t.accountID = accounts[0].ID
	t.resolved = true
	t.logger.WithField("account_id", t.accountID).Info("broker account resolved")
	return t.accountID, nil
}

type orderRequest struct {
	AccountSpec string `json:"accountSpec"`
	AccountID   int64  `json:"accountId"`
	Action      string `json:"action"`
	Symbol      string `json:"symbol"`
	OrderQty    int    `json:"orderQty"`
	OrderType   string `json:"orderType"`
	IsAutomated bool   `json:"isAutomated"`
}

// EnterPosition implements Broker. Zero quantity is a no-op.
func (t *TradovateClient) EnterPosition(ctx context.Context, quantity int, isLong bool) error {
	if quantity == 0 {
		t.logger.Debug("quantity is 0, skipping order")
		return nil
	}
	accountID, err := t.ensureAccountID(ctx)
	if err != nil {
		return err
	}

	action := "Sell"
	if isLong {
		action = "Buy"
	}
	order := orderRequest{
		AccountSpec: t.username,
		AccountID:   accountID,
		Action:      action,
		Symbol:      t.symbol,
		OrderQty:    quantity,
		OrderType:   "Market",
		IsAutomated: true,
	}
	var placed map[string]interface{}
	if err := t.makeRequestCtx(ctx, http.MethodPost,
		t.apiURL+"/order/placeorder", order, &placed); err != nil {
		return fmt.Errorf("placing %s order: %w", strings.ToLower(action), err)
	}
	t.logger.WithFields(logrus.Fields{
		"action": action, "qty": quantity, "symbol": t.symbol,
	}).Info("market order placed")
	return nil
}

type positionItem struct {
	AccountID int64 `json:"accountId"`
	NetPos    int   `json:"netPos"`
}

// NetPosition implements Broker. Positions are filtered by the resolved
// account id; no position rows means flat.
func (t *TradovateClient) NetPosition(ctx context.Context) (int, error) {
	accountID, err := t.ensureAccountID(ctx)
	if err != nil {
		return 0, err
	}

	var positions []positionItem
	if err := t.makeRequestCtx(ctx, http.MethodGet,
		t.apiURL+"/position/list", nil, &positions); err != nil {
		return 0, fmt.Errorf("listing positions: %w", err)
	}
	for _, pos := range positions {
		if pos.AccountID == accountID {
			return pos.NetPos, nil
		}
	}
	return 0, nil
}

// makeRequestCtx performs a bearer-authenticated JSON request. Non-2xx
// responses become *APIError with a bounded copy of the body.
func (t *TradovateClient) makeRequestCtx(ctx context.Context, method, endpoint string,
	payload interface{}, response interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.tokens.Token())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.WithError(cerr).Debug("failed to close response body")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if rerr != nil {
			return &APIError{Status: resp.StatusCode,
				Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode,
			Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(respBody))}
	}
	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
