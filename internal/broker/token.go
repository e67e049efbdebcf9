package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval is how often the access token is renewed.
const DefaultRefreshInterval = 30 * time.Minute

// Credentials holds the Tradovate API credential set, sourced from the
// environment.
type Credentials struct {
	Username string
	Password string
	ClientID string
	CID      string
	Secret   string
}

// TokenManager owns the broker access token. The token is fetched once at
// startup and renewed on a fixed interval; every reader goes through the
// guarded Token accessor. A failed renewal keeps the current token - the
// next tick retries.
type TokenManager struct {
	apiURL   string
	creds    Credentials
	client   *http.Client
	logger   *logrus.Logger
	interval time.Duration

	mu    sync.RWMutex
	token string
}

// NewTokenManager creates a token manager. A zero interval selects
// DefaultRefreshInterval; a nil client selects a default with a 10s timeout.
func NewTokenManager(apiURL string, creds Credentials, interval time.Duration,
	client *http.Client, logger *logrus.Logger) *TokenManager {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenManager{
		apiURL:   apiURL,
		creds:    creds,
		client:   client,
		logger:   logger,
		interval: interval,
	}
}

// Token returns the current access token.
func (tm *TokenManager) Token() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.token
}

// Start fetches the initial access token. Must succeed before the service
// can place orders.
func (tm *TokenManager) Start(ctx context.Context) error {
	token, err := tm.requestToken(ctx)
	if err != nil {
		return fmt.Errorf("requesting initial access token: %w", err)
	}
	tm.mu.Lock()
	tm.token = token
	tm.mu.Unlock()
	tm.logger.Info("access token obtained")
	return nil
}

// Run renews the token on the configured interval until ctx is canceled.
func (tm *TokenManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(tm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := tm.refresh(ctx); err != nil {
				tm.logger.WithError(err).Error("token renewal failed, keeping current token")
			}
		}
	}
}

func (tm *TokenManager) refresh(ctx context.Context) error {
	current := tm.Token()
	token, err := tm.renewToken(ctx, current)
	if err != nil {
		return err
	}
	tm.mu.Lock()
	tm.token = token
	tm.mu.Unlock()
	tm.logger.Debug("access token renewed")
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (tm *TokenManager) requestToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"name":       tm.creds.Username,
		"password":   tm.creds.Password,
		"appId":      tm.creds.ClientID,
		"appVersion": "1.0.0",
		"cid":        tm.creds.CID,
		"sec":        tm.creds.Secret,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tm.apiURL+"/auth/accesstokenrequest", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return tm.doTokenRequest(req)
}

func (tm *TokenManager) renewToken(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		tm.apiURL+"/auth/renewaccesstoken", http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return tm.doTokenRequest(req)
}

func (tm *TokenManager) doTokenRequest(req *http.Request) (string, error) {
	resp, err := tm.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			tm.logger.WithError(cerr).Debug("failed to close token response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing accessToken")
	}
	return tr.AccessToken, nil
}
