// Package dispatch fans incoming market bars out to registered strategies.
// One dispatcher processes bars sequentially; it is the only writer of
// strategy state and of the previous-bar price.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bingolead-stack/levelbot/internal/models"
	"github.com/bingolead-stack/levelbot/internal/strategy"
)

// ErrNoStrategies is returned when a bar arrives before any strategy has
// been registered.
var ErrNoStrategies = errors.New("no strategies registered")

// Dispatcher delivers bars to strategies in registration order, tracking
// the previous bar's close so each strategy sees (close, prev_close) pairs.
type Dispatcher struct {
	mu         sync.Mutex
	strategies []*strategy.Strategy
	lastClose  *float64
	now        func() time.Time
	logger     *logrus.Logger
}

// New creates a dispatcher. now is the clock used to timestamp dispatched
// bars; nil means time.Now.
func New(logger *logrus.Logger, now func() time.Time) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{now: now, logger: logger}
}

// Register appends a strategy. Dispatch order is registration order.
func (d *Dispatcher) Register(s *strategy.Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies = append(d.strategies, s)
}

// Strategies returns the registered strategies in dispatch order.
func (d *Dispatcher) Strategies() []*strategy.Strategy {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*strategy.Strategy, len(d.strategies))
	copy(out, d.strategies)
	return out
}

// HandleBar accepts one bar. The first bar only seeds the previous-close
// tracker; subsequent bars are dispatched to every enabled strategy. Errors
// inside one strategy never block its siblings: a fatal
// strategy.ErrLadderExhausted disables that strategy, anything else is
// logged and dispatch continues.
func (d *Dispatcher) HandleBar(ctx context.Context, bar models.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.strategies) == 0 {
		return ErrNoStrategies
	}

	if d.lastClose == nil {
		c := bar.Close
		d.lastClose = &c
		d.logger.WithField("close", bar.Close).Info("first bar received, seeding previous close")
		return nil
	}
	prevClose := *d.lastClose
	barTime := d.now()

	for _, s := range d.strategies {
		if !s.Enabled() {
			continue
		}
		err := s.Update(ctx, barTime, bar.Close, prevClose, bar.High, bar.Low)
		if err == nil {
			continue
		}
		if errors.Is(err, strategy.ErrLadderExhausted) {
			d.logger.WithError(err).WithField("strategy", s.Name()).
				Error("fatal strategy error, disabling")
			s.Disable()
			continue
		}
		d.logger.WithError(err).WithField("strategy", s.Name()).
			Error("strategy update failed")
	}

	c := bar.Close
	d.lastClose = &c
	return nil
}

// Shutdown saves every strategy's state and logs its trade summary. Called
// after the dispatcher has stopped accepting bars.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.strategies {
		if err := s.SaveState(); err != nil {
			d.logger.WithError(err).WithField("strategy", s.Name()).
				Error("failed to save state on shutdown")
		}
		s.PrintTradeStats()
	}
}
