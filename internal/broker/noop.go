package broker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// NoopBroker fills every order locally without touching an exchange.
// Used in paper mode and by the test suite.
type NoopBroker struct {
	logger *logrus.Logger

	mu     sync.Mutex
	netPos int
}

func NewNoopBroker(logger *logrus.Logger) *NoopBroker {
	if logger == nil {
		logger = logrus.New()
	}
	return &NoopBroker{logger: logger}
}

// EnterPosition implements Broker. Orders always fill and adjust the
// simulated net position.
func (n *NoopBroker) EnterPosition(_ context.Context, quantity int, isLong bool) error {
	if quantity == 0 {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if isLong {
		n.netPos += quantity
	} else {
		n.netPos -= quantity
	}
	n.logger.WithFields(logrus.Fields{
		"qty": quantity, "long": isLong, "net_pos": n.netPos,
	}).Info("paper order filled")
	return nil
}

// NetPosition implements Broker.
func (n *NoopBroker) NetPosition(_ context.Context) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.netPos, nil
}
