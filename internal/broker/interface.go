// Package broker provides the trading API client for executing futures
// orders. It includes the Tradovate REST implementation, a circuit-breaker
// wrapper, and a no-op adapter for backtests.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Broker is the minimal contract a strategy needs: place a market order and
// read the account's net position. Implementations must treat a returned
// error as "order not filled" - the strategy will not record the position.
type Broker interface {
	// EnterPosition places a market order for quantity contracts.
	// isLong selects Buy; !isLong selects Sell.
	EnterPosition(ctx context.Context, quantity int, isLong bool) error

	// NetPosition returns the signed net contract count for the account's
	// configured symbol. Zero when flat.
	NetPosition(ctx context.Context) (int, error)
}

// ErrNoAccounts is returned when the broker account list comes back empty.
// This is fatal at first use: orders cannot be routed anywhere.
var ErrNoAccounts = errors.New("no broker accounts found")

// APIError represents a broker API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// CircuitBreakerBroker wraps a Broker so that a run of broker failures
// short-circuits further calls instead of stalling the dispatcher on
// timeouts bar after bar.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker wraps broker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings wraps broker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, logger *logrus.Logger,
	settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name, "from": from.String(), "to": to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// EnterPosition wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) EnterPosition(ctx context.Context, quantity int, isLong bool) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.broker.EnterPosition(ctx, quantity, isLong)
	})
	return err
}

// NetPosition wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) NetPosition(ctx context.Context) (int, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.NetPosition(ctx)
	})
	if err != nil {
		return 0, err
	}
	n, ok := res.(int)
	if !ok {
		return 0, errors.New("circuit breaker: type assertion failed")
	}
	return n, nil
}

// Ensure implementations satisfy Broker at compile time.
var (
	_ Broker = (*TradovateClient)(nil)
	_ Broker = (*NoopBroker)(nil)
	_ Broker = (*CircuitBreakerBroker)(nil)
)
