// Package feed streams quotes from the Tradovate market-data websocket and
// aggregates them into bars for the dispatcher. The webhook remains the
// primary ingest path; the feed is an optional alternative source.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bingolead-stack/levelbot/internal/dispatch"
	"github.com/bingolead-stack/levelbot/internal/models"
)

const (
	dialTimeout    = 10 * time.Second
	reconnectDelay = 5 * time.Second
)

// TokenSource provides the websocket auth token.
type TokenSource interface {
	Token() string
}

// Client consumes quote messages for one symbol and rolls them into
// fixed-interval bars.
type Client struct {
	url        string
	symbol     string
	interval   time.Duration
	tokens     TokenSource
	dispatcher *dispatch.Dispatcher
	logger     *logrus.Logger
	now        func() time.Time
}

// NewClient builds a market-data client. interval is the bar width; zero
// means one minute.
func NewClient(url, symbol string, interval time.Duration, tokens TokenSource,
	dispatcher *dispatch.Dispatcher, logger *logrus.Logger) *Client {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		url:        url,
		symbol:     symbol,
		interval:   interval,
		tokens:     tokens,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

type outboundMsg struct {
	MsgType string `json:"msgType"`
	Token   string `json:"token,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

type quoteMsg struct {
	Event string  `json:"e"`
	Bid   float64 `json:"bp"`
	High  float64 `json:"h"`
	Low   float64 `json:"l"`
}

// Run connects, authorizes, subscribes, and pumps quotes until ctx is
// cancelled. Connection failures trigger a delayed reconnect.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).Warn("market data connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing market data feed: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			c.logger.WithError(cerr).Debug("failed to close feed connection")
		}
	}()

	if err := conn.WriteJSON(outboundMsg{MsgType: "authorize", Token: c.tokens.Token()}); err != nil {
		return fmt.Errorf("authorizing feed: %w", err)
	}
	if err := conn.WriteJSON(outboundMsg{MsgType: "subscribeQuote", Symbol: c.symbol}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", c.symbol, err)
	}
	c.logger.WithField("symbol", c.symbol).Info("subscribed to market data")

	// Close the connection when ctx is cancelled to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	var agg *barAggregator
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var q quoteMsg
		if err := json.Unmarshal(raw, &q); err != nil || q.Event != "quote" {
			continue
		}
		if agg == nil {
			agg = newBarAggregator(c.interval, c.now())
		}
		if bar, complete := agg.add(q.Bid, c.now()); complete {
			if err := c.dispatcher.HandleBar(ctx, bar); err != nil {
				c.logger.WithError(err).Warn("dropping aggregated bar")
			}
		}
	}
}

// barAggregator rolls ticks into fixed-interval OHLC bars.
type barAggregator struct {
	interval time.Duration
	start    time.Time
	open     float64
	high     float64
	low      float64
	close    float64
	seeded   bool
}

func newBarAggregator(interval time.Duration, start time.Time) *barAggregator {
	return &barAggregator{interval: interval, start: start.Truncate(interval)}
}

// add folds one tick in. When the tick lands beyond the current interval
// the finished bar is returned and a new one begins with this tick.
func (a *barAggregator) add(price float64, at time.Time) (models.Bar, bool) {
	bucket := at.Truncate(a.interval)
	if !a.seeded {
		a.start = bucket
		a.open, a.high, a.low, a.close = price, price, price, price
		a.seeded = true
		return models.Bar{}, false
	}
	if bucket.After(a.start) {
		done := models.Bar{Open: a.open, High: a.high, Low: a.low, Close: a.close}
		a.start = bucket
		a.open, a.high, a.low, a.close = price, price, price, price
		return done, true
	}
	if price > a.high {
		a.high = price
	}
	if price < a.low {
		a.low = price
	}
	a.close = price
	return models.Bar{}, false
}
