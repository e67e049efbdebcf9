// Package strategy implements the level-retracement state machine. Each
// Strategy watches price move through a fixed ladder of horizontal levels,
// enters when price pulls back through an armed entry band, and manages
// stops, trailing stops, and take-profits per open trade.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bingolead-stack/levelbot/internal/broker"
	"github.com/bingolead-stack/levelbot/internal/hours"
	"github.com/bingolead-stack/levelbot/internal/models"
	"github.com/bingolead-stack/levelbot/internal/storage"
	"github.com/bingolead-stack/levelbot/internal/util"
)

// MinEntryInterval is the minimum bar-time spacing between entries.
const MinEntryInterval = 5 * time.Minute

// ErrLadderExhausted indicates the ladder has too few levels beyond a
// trade's triggering level to arm its trailing stop. The strategy is
// misconfigured for its ladder; the dispatcher disables it.
var ErrLadderExhausted = errors.New("ladder too short to arm trailing stop")

// marginPerContract approximates the exchange margin tied up by one
// contract at the given entry price (10% of notional at $12.50 a tick).
func marginPerContract(entryPrice float64) float64 {
	return entryPrice * 0.1 * 4 * 12.5
}

// Params are the per-strategy configuration values. Offsets are expressed
// in ticks and converted to price at construction.
type Params struct {
	Name                 string
	EntryOffsetTicks     float64
	TakeProfitTicks      float64
	StopLossTicks        float64
	TrailTrigger         int
	ReEntryDistance      int
	MaxOpenTrades        int
	MaxContractsPerTrade int
	SymbolSize           float64
	IsTradingLong        bool
	UseTradingHours      bool
	EarlyCloseCalendar   hours.Calendar
	StaticLevels         []float64
	LongDateRanges       []DateRange
	ShortDateRanges      []DateRange
}

// Validate checks the parameter set for values the state machine cannot
// operate with.
func (p *Params) Validate() error {
	if p.Name == "" {
		return errors.New("strategy name is required")
	}
	if p.EntryOffsetTicks < 0 || p.TakeProfitTicks <= 0 || p.StopLossTicks <= 0 {
		return fmt.Errorf("%s: offsets must be positive (entry may be zero)", p.Name)
	}
	if p.TrailTrigger < 1 {
		return fmt.Errorf("%s: trail_trigger must be at least 1", p.Name)
	}
	if p.ReEntryDistance < 1 {
		return fmt.Errorf("%s: re_entry_distance must be at least 1", p.Name)
	}
	if p.MaxOpenTrades < 1 || p.MaxContractsPerTrade < 1 {
		return fmt.Errorf("%s: max_open_trades and max_contracts_per_trade must be at least 1", p.Name)
	}
	if p.SymbolSize <= 0 {
		return fmt.Errorf("%s: symbol_size must be positive", p.Name)
	}
	if len(p.StaticLevels) == 0 {
		return fmt.Errorf("%s: static_levels must not be empty", p.Name)
	}
	return nil
}

// Strategy is one level-retracement state machine. It is not safe for
// concurrent use; the dispatcher serializes updates per strategy.
type Strategy struct {
	name   string
	broker broker.Broker
	store  storage.Interface
	oracle *hours.Oracle
	logger *logrus.Entry

	entryOffset      float64
	takeProfitOffset float64
	stopLossOffset   float64
	trailTrigger     int
	reEntryDistance  int
	maxOpenTrades    int
	maxContracts     int
	symbolSize       float64
	isTradingLong    bool
	dateRanges       []DateRange

	ladder *models.Ladder

	openTrades    []models.OpenTrade
	history       []models.HistoryRecord
	cumulativePnL []float64
	stats         models.SummaryStats

	currentCashValue float64
	openTradeCount   int
	totalPnL         float64

	price     *float64
	lastPrice *float64
	highPrice *float64
	lowPrice  *float64
	barTime   *time.Time

	entriesThisBar map[int]struct{}
	lastBarTime    *time.Time
	lastEntryTime  *time.Time

	flattenedToday bool
	flattenDate    string

	autoSave bool
	enabled  bool
}

// New builds a strategy from validated parameters. A nil broker means paper
// mode: every order is assumed filled. A nil store disables persistence.
func New(p Params, b broker.Broker, store storage.Interface, logger *logrus.Logger) (*Strategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ladder, err := models.NewLadder(p.StaticLevels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	var oracle *hours.Oracle
	if p.UseTradingHours {
		oracle, err = hours.NewOracle(p.EarlyCloseCalendar)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
	}

	ranges := p.LongDateRanges
	if !p.IsTradingLong {
		ranges = p.ShortDateRanges
	}

	return &Strategy{
		name:             p.Name,
		broker:           b,
		store:            store,
		oracle:           oracle,
		logger:           logger.WithField("strategy", p.Name),
		entryOffset:      util.TicksToPrice(p.EntryOffsetTicks),
		takeProfitOffset: util.TicksToPrice(p.TakeProfitTicks),
		stopLossOffset:   util.TicksToPrice(p.StopLossTicks),
		trailTrigger:     p.TrailTrigger,
		reEntryDistance:  p.ReEntryDistance,
		maxOpenTrades:    p.MaxOpenTrades,
		maxContracts:     p.MaxContractsPerTrade,
		symbolSize:       p.SymbolSize,
		isTradingLong:    p.IsTradingLong,
		dateRanges:       ranges,
		ladder:           ladder,
		entriesThisBar:   make(map[int]struct{}),
		autoSave:         store != nil,
		enabled:          true,
	}, nil
}

// Name returns the strategy's unique name.
func (s *Strategy) Name() string { return s.name }

// Enabled reports whether the strategy still accepts updates.
func (s *Strategy) Enabled() bool { return s.enabled }

// Disable stops the strategy from trading. Used by the dispatcher after a
// fatal per-strategy error.
func (s *Strategy) Disable() { s.enabled = false }

// Ladder exposes the static-level ladder, mainly for tests and inspection.
func (s *Strategy) Ladder() *models.Ladder { return s.ladder }

// OpenTrades returns a copy of the live open-trade list.
func (s *Strategy) OpenTrades() []models.OpenTrade {
	out := make([]models.OpenTrade, len(s.openTrades))
	copy(out, s.openTrades)
	return out
}

// History returns a copy of the append-only trade history.
func (s *Strategy) History() []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(s.history))
	copy(out, s.history)
	return out
}

// CumulativePnL returns a copy of the realized-total series.
func (s *Strategy) CumulativePnL() []float64 {
	out := make([]float64, len(s.cumulativePnL))
	copy(out, s.cumulativePnL)
	return out
}

// Stats returns the current summary statistics.
func (s *Strategy) Stats() models.SummaryStats { return s.stats }

// TotalPnL returns the realized profit and loss so far.
func (s *Strategy) TotalPnL() float64 { return s.totalPnL }

// OpenTradeCount returns the live position counter.
func (s *Strategy) OpenTradeCount() int { return s.openTradeCount }

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Update drives the state machine with one bar. close is the bar's closing
// price, prevClose the close of the previous dispatched bar. Phases run in
// a fixed order: hours gate, per-bar reset, ladder annotation, entry
// evaluation, exit evaluation, then a persistence snapshot.
func (s *Strategy) Update(ctx context.Context, barTime time.Time, close, prevClose, high, low float64) error {
	if !validPrice(close) || !validPrice(prevClose) || !validPrice(high) || !validPrice(low) {
		return fmt.Errorf("invalid bar data: close=%v prev=%v high=%v low=%v", close, prevClose, high, low)
	}

	s.price = &close
	s.lastPrice = &prevClose
	s.highPrice = &high
	s.lowPrice = &low
	s.barTime = &barTime

	if s.oracle != nil {
		today := s.oracle.ExchangeDate(barTime)
		if s.flattenDate != today {
			s.flattenedToday = false
		}

		if s.oracle.InFlattenWindow(barTime) {
			if !s.flattenedToday {
				s.flattenAll(ctx, close, barTime, "daily close approaching")
				s.flattenedToday = true
				s.flattenDate = today
			}
			if err := s.checkExits(ctx, barTime, close); err != nil {
				return err
			}
			return s.persist()
		}

		if !s.oracle.TradingAllowed(barTime) {
			// Stops still clear while the market is halted; no new entries.
			if err := s.checkExits(ctx, barTime, close); err != nil {
				return err
			}
			return s.persist()
		}
	}

	if s.lastBarTime == nil || !s.lastBarTime.Equal(barTime) {
		s.entriesThisBar = make(map[int]struct{})
		t := barTime
		s.lastBarTime = &t
	}

	s.annotateLadder(close, high, low)

	if s.inDateRange(barTime) {
		if s.isTradingLong {
			s.evaluateLongEntries(ctx, barTime, close, prevClose)
		} else {
			s.evaluateShortEntries(ctx, barTime, close, prevClose)
		}
	}

	if err := s.checkExits(ctx, barTime, close); err != nil {
		return err
	}

	return s.persist()
}

// inDateRange applies the optional date-range pre-filter. Bars outside the
// permitted ranges still annotate the ladder and clear exits but never open
// new positions. No configured ranges means always permitted.
func (s *Strategy) inDateRange(t time.Time) bool {
	if len(s.dateRanges) == 0 {
		return true
	}
	for _, r := range s.dateRanges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// annotateLadder records the direction of every level cross in this bar.
// An exact touch of high or low does not count as a cross.
func (s *Strategy) annotateLadder(close, high, low float64) {
	for i := 0; i < s.ladder.Len(); i++ {
		level := s.ladder.Level(i)
		switch {
		case close <= level && level < high:
			s.logger.WithFields(logrus.Fields{
				"level": level, "close": close, "high": high,
			}).Info("price crossed down through level")
			s.ladder.Annotate(i, models.RetraceDown)
		case close >= level && level > low:
			s.logger.WithFields(logrus.Fields{
				"level": level, "close": close, "low": low,
			}).Info("price crossed up through level")
			s.ladder.Annotate(i, models.RetraceUp)
		}
	}
}

// entryAllowed applies the per-bar and rate-limit gates shared by both
// directions.
func (s *Strategy) entryAllowed(barTime time.Time, levelIdx int) bool {
	if _, done := s.entriesThisBar[levelIdx]; done {
		s.logger.WithField("level_idx", levelIdx).Info("skipping entry, already entered this bar")
		return false
	}
	if s.lastEntryTime != nil && barTime.Sub(*s.lastEntryTime) < MinEntryInterval {
		s.logger.WithFields(logrus.Fields{
			"since_last": barTime.Sub(*s.lastEntryTime), "min": MinEntryInterval,
		}).Info("skipping entry, too soon after last entry")
		return false
	}
	return true
}

func (s *Strategy) evaluateLongEntries(ctx context.Context, barTime time.Time, close, prevClose float64) {
	room := s.maxOpenTrades - s.openTradeCount
	if room <= 0 {
		s.logger.WithFields(logrus.Fields{
			"open": s.openTradeCount, "max": s.maxOpenTrades,
		}).Debug("no room to trade")
		return
	}

	for i := 0; i < s.ladder.Len() && room > 0; i++ {
		level := s.ladder.Level(i)
		threshold := level + s.entryOffset

		// Price just pulled down through the entry band above the level.
		if !(close <= threshold && threshold < prevClose) {
			continue
		}
		reEntryIdx := i + s.reEntryDistance
		if !s.ladder.InRange(reEntryIdx) || s.ladder.Annotation(reEntryIdx) != models.RetraceDown {
			continue
		}
		if !s.entryAllowed(barTime, i) {
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"level": level, "level_idx": i, "re_entry_idx": reEntryIdx,
			"close": close, "prev_close": prevClose, "threshold": threshold,
		}).Info("long entry triggered")
		s.ladder.Clear(reEntryIdx)

		for c := 0; c < s.maxContracts && room > 0; c++ {
			if s.fillEntry(ctx, barTime, close, level, models.SideLong) {
				room--
				s.entriesThisBar[i] = struct{}{}
				t := barTime
				s.lastEntryTime = &t
			}
		}
	}
}

func (s *Strategy) evaluateShortEntries(ctx context.Context, barTime time.Time, close, prevClose float64) {
	room := s.maxOpenTrades - s.openTradeCount
	if room <= 0 {
		s.logger.WithFields(logrus.Fields{
			"open": s.openTradeCount, "max": s.maxOpenTrades,
		}).Debug("no room to trade")
		return
	}

	for i := 0; i < s.ladder.Len() && room > 0; i++ {
		level := s.ladder.Level(i)
		threshold := level - s.entryOffset

		// Price just pushed up through the entry band below the level.
		if !(close > threshold && threshold >= prevClose) {
			continue
		}
		reEntryIdx := i - s.reEntryDistance
		if !s.ladder.InRange(reEntryIdx) || s.ladder.Annotation(reEntryIdx) != models.RetraceUp {
			continue
		}
		if !s.entryAllowed(barTime, i) {
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"level": level, "level_idx": i, "re_entry_idx": reEntryIdx,
			"close": close, "prev_close": prevClose, "threshold": threshold,
		}).Info("short entry triggered")
		s.ladder.Clear(reEntryIdx)

		for c := 0; c < s.maxContracts && room > 0; c++ {
			if s.fillEntry(ctx, barTime, close, level, models.SideShort) {
				room--
				s.entriesThisBar[i] = struct{}{}
				t := barTime
				s.lastEntryTime = &t
			}
		}
	}
}

// fillEntry sends one entry order and, on fill, records the open trade and
// its history row. A broker failure means the position was never taken.
func (s *Strategy) fillEntry(ctx context.Context, barTime time.Time, close, level float64, side models.TradeSide) bool {
	trade := models.OpenTrade{
		ID:              uuid.NewString(),
		Side:            side,
		EntryTime:       barTime,
		EntryPrice:      close,
		TriggeringLevel: level,
	}
	action := models.ActionBuy
	isLong := side == models.SideLong
	if isLong {
		trade.StopLevel = close - s.stopLossOffset
		trade.TakeProfitLevel = close + s.takeProfitOffset
	} else {
		action = models.ActionSell
		trade.StopLevel = close + s.stopLossOffset
		trade.TakeProfitLevel = close - s.takeProfitOffset
	}

	s.logger.WithFields(logrus.Fields{
		"action": action, "price": close, "stop": trade.StopLevel, "take_profit": trade.TakeProfitLevel,
	}).Info("entry order sent")

	if s.broker != nil {
		if err := s.broker.EnterPosition(ctx, 1, isLong); err != nil {
			s.logger.WithError(err).Warn("order failed, trade not added")
			return false
		}
	}

	s.history = append(s.history, models.HistoryRecord{
		Timestamp: barTime, Action: action, Price: close, PnL: 0,
	})
	s.openTrades = append(s.openTrades, trade)
	s.openTradeCount++
	s.currentCashValue -= marginPerContract(close)
	s.logger.WithFields(logrus.Fields{
		"open_trades": s.openTradeCount, "list_size": len(s.openTrades),
	}).Info("order executed")
	return true
}

// checkExits runs trailing-stop management and the exit predicate over
// every open trade. Returns ErrLadderExhausted (wrapped) when a trade's
// triggering level has no ladder room to arm its trailing stop.
func (s *Strategy) checkExits(ctx context.Context, barTime time.Time, close float64) error {
	if s.openTradeCount == 0 && len(s.openTrades) == 0 {
		return nil
	}

	kept := s.openTrades[:0]
	var exitErr error
	for idx := range s.openTrades {
		trade := &s.openTrades[idx]
		if exitErr != nil {
			kept = append(kept, *trade)
			continue
		}

		var exited bool
		var err error
		if trade.Side == models.SideLong {
			exited, err = s.manageLongExit(ctx, trade, barTime, close)
		} else {
			exited, err = s.manageShortExit(ctx, trade, barTime, close)
		}
		if err != nil {
			exitErr = err
			kept = append(kept, *trade)
			continue
		}
		if !exited {
			kept = append(kept, *trade)
		}
	}
	// Zero the tail so removed trades do not linger in the backing array.
	for i := len(kept); i < len(s.openTrades); i++ {
		s.openTrades[i] = models.OpenTrade{}
	}
	s.openTrades = kept

	if s.openTradeCount != len(s.openTrades) {
		s.logger.WithFields(logrus.Fields{
			"count": s.openTradeCount, "list_size": len(s.openTrades),
		}).Warn("open trade count mismatch, reconciling to list length")
		s.openTradeCount = len(s.openTrades)
	}
	return exitErr
}

func (s *Strategy) manageLongExit(ctx context.Context, trade *models.OpenTrade, barTime time.Time, close float64) (bool, error) {
	if trade.TrailingStop == nil {
		j := s.ladder.IndexOf(trade.TriggeringLevel)
		if j < 0 || j+s.trailTrigger >= s.ladder.Len() {
			return false, fmt.Errorf("%w: long trade at level %v (idx %d, trigger %d, ladder %d)",
				ErrLadderExhausted, trade.TriggeringLevel, j, s.trailTrigger, s.ladder.Len())
		}
		trigger := s.ladder.Level(j + s.trailTrigger)
		if close > trigger {
			s.logger.WithField("trailing_stop", trigger).Info("trailing stop armed for long")
			trade.TrailingStop = &trigger
		}
	}
	if trade.TrailingStop != nil {
		if ratchet := close - s.stopLossOffset; ratchet > *trade.TrailingStop {
			trade.TrailingStop = &ratchet
		}
	}

	hitTrail := trade.TrailingStop != nil && close <= *trade.TrailingStop
	if close <= trade.StopLevel || hitTrail || close >= trade.TakeProfitLevel {
		reason := "take profit"
		if hitTrail {
			reason = "trailing stop"
		} else if close <= trade.StopLevel {
			reason = "stop loss"
		}
		s.closeTrade(ctx, trade, barTime, close, models.ActionExit, reason)
		return true, nil
	}
	return false, nil
}

func (s *Strategy) manageShortExit(ctx context.Context, trade *models.OpenTrade, barTime time.Time, close float64) (bool, error) {
	if trade.TrailingStop == nil {
		j := s.ladder.IndexOf(trade.TriggeringLevel)
		if j < 0 || j-s.trailTrigger < 0 {
			return false, fmt.Errorf("%w: short trade at level %v (idx %d, trigger %d)",
				ErrLadderExhausted, trade.TriggeringLevel, j, s.trailTrigger)
		}
		trigger := s.ladder.Level(j - s.trailTrigger)
		if close <= trigger {
			s.logger.WithField("trailing_stop", trigger).Info("trailing stop armed for short")
			trade.TrailingStop = &trigger
		}
	}
	if trade.TrailingStop != nil {
		if ratchet := close + s.stopLossOffset; ratchet < *trade.TrailingStop {
			trade.TrailingStop = &ratchet
		}
	}

	hitTrail := trade.TrailingStop != nil && close >= *trade.TrailingStop
	if close >= trade.StopLevel || hitTrail || close <= trade.TakeProfitLevel {
		reason := "take profit"
		if hitTrail {
			reason = "trailing stop"
		} else if close >= trade.StopLevel {
			reason = "stop loss"
		}
		s.closeTrade(ctx, trade, barTime, close, models.ActionExit, reason)
		return true, nil
	}
	return false, nil
}

// closeTrade realizes one trade at the given price, records history and the
// cumulative series, returns margin, and offsets the broker position when
// its net position still carries the trade's direction.
func (s *Strategy) closeTrade(ctx context.Context, trade *models.OpenTrade, barTime time.Time, close float64, action models.TradeAction, reason string) {
	var pnl float64
	if trade.Side == models.SideLong {
		pnl = (close - trade.EntryPrice) * s.symbolSize
	} else {
		pnl = (trade.EntryPrice - close) * s.symbolSize
	}

	s.currentCashValue += pnl + marginPerContract(trade.EntryPrice)
	s.totalPnL += pnl
	s.history = append(s.history, models.HistoryRecord{
		Timestamp: barTime, Action: action, Price: close, PnL: pnl,
	})
	s.cumulativePnL = append(s.cumulativePnL, s.totalPnL)
	s.openTradeCount--
	s.recomputeStats()

	if s.broker != nil {
		s.offsetPosition(ctx, trade.Side, action)
	}

	s.logger.WithFields(logrus.Fields{
		"side": trade.Side, "reason": reason, "price": close,
		"pnl": pnl, "entry": trade.EntryPrice,
		"duration": barTime.Sub(trade.EntryTime).String(),
	}).Info("position closed")
}

// offsetPosition sends the broker order that unwinds one contract. Exits
// only offset when the account's net position still matches the trade's
// direction; flattens always offset.
func (s *Strategy) offsetPosition(ctx context.Context, side models.TradeSide, action models.TradeAction) {
	offsetLong := side == models.SideShort
	if action == models.ActionExit {
		netPos, err := s.broker.NetPosition(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("net position lookup failed, skipping offset order")
			return
		}
		if side == models.SideLong && netPos <= 0 {
			return
		}
		if side == models.SideShort && netPos >= 0 {
			return
		}
	}
	if err := s.broker.EnterPosition(ctx, 1, offsetLong); err != nil {
		s.logger.WithError(err).Error("offset order failed")
	}
}

// flattenAll closes every open trade at the current price, appending one
// FLATTEN record per trade and emptying the open list.
func (s *Strategy) flattenAll(ctx context.Context, close float64, barTime time.Time, reason string) {
	if s.openTradeCount == 0 && len(s.openTrades) == 0 {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"reason": reason, "open_trades": s.openTradeCount,
	}).Info("flattening all positions")

	var total float64
	for idx := range s.openTrades {
		trade := &s.openTrades[idx]
		before := s.totalPnL
		s.closeTrade(ctx, trade, barTime, close, models.ActionFlatten, reason)
		total += s.totalPnL - before
	}
	s.openTrades = s.openTrades[:0]
	s.openTradeCount = 0

	s.logger.WithField("flatten_pnl", total).Info("all positions flattened")
}

// recomputeStats rebuilds the summary statistics from the trade history.
// Win-rate statistics count EXIT records only; FLATTEN realizations still
// flow into the total.
func (s *Strategy) recomputeStats() {
	var wins, losses []float64
	maxStreak, streak := 0, 0
	for _, rec := range s.history {
		if rec.Action != models.ActionExit {
			continue
		}
		if rec.PnL > 0 {
			wins = append(wins, rec.PnL)
			streak = 0
		} else {
			losses = append(losses, rec.PnL)
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		}
	}

	total := len(wins) + len(losses)
	var avgWin, avgLoss float64
	for _, w := range wins {
		avgWin += w
	}
	for _, l := range losses {
		avgLoss += l
	}
	avgWin /= math.Max(1, float64(len(wins)))
	avgLoss /= math.Max(1, float64(len(losses)))

	s.stats = models.SummaryStats{
		TotalPnL:        s.totalPnL,
		WinRate:         float64(len(wins)) / math.Max(1, float64(total)) * 100,
		AvgWinner:       avgWin,
		AvgLoser:        avgLoss,
		TotalTrades:     total,
		RewardToRisk:    avgWin / math.Max(1, math.Abs(avgLoss)),
		MaxLosingStreak: maxStreak,
	}
}

// persist writes a snapshot when persistence is enabled. Store errors are
// logged and returned so the dispatcher can surface them; the bar itself is
// never dropped.
func (s *Strategy) persist() error {
	if s.store == nil || !s.autoSave {
		return nil
	}
	if err := s.store.SaveState(s.name, s.Snapshot()); err != nil {
		s.logger.WithError(err).Error("failed to save state")
		return fmt.Errorf("saving state for %s: %w", s.name, err)
	}
	return nil
}

// SaveState forces a snapshot write regardless of the auto-save setting.
func (s *Strategy) SaveState() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveState(s.name, s.Snapshot()); err != nil {
		return fmt.Errorf("saving state for %s: %w", s.name, err)
	}
	return nil
}

// Snapshot captures the complete durable state of the strategy.
func (s *Strategy) Snapshot() *models.StrategySnapshot {
	entries := make([]int, 0, len(s.entriesThisBar))
	for i := range s.entriesThisBar {
		entries = append(entries, i)
	}
	sort.Ints(entries)

	snap := &models.StrategySnapshot{
		CurrentCashValue: s.currentCashValue,
		OpenTradeCount:   s.openTradeCount,
		TotalPnL:         s.totalPnL,
		Price:            copyFloat(s.price),
		LastPrice:        copyFloat(s.lastPrice),
		HighPrice:        copyFloat(s.highPrice),
		LowPrice:         copyFloat(s.lowPrice),
		BarTime:          copyTime(s.barTime),
		Stats:            s.stats,
		LastEntryTime:    copyTime(s.lastEntryTime),
		LastBarTime:      copyTime(s.lastBarTime),
		EntriesThisBar:   entries,
		FlattenedToday:   s.flattenedToday,
		FlattenDate:      s.flattenDate,
		TradeHistory:     append([]models.HistoryRecord(nil), s.history...),
		OpenTrades:       append([]models.OpenTrade(nil), s.openTrades...),
		Retraces:         s.ladder.Annotations(),
		CumulativePnL:    append([]float64(nil), s.cumulativePnL...),
		StaticLevels:     s.ladder.Levels(),
	}
	return snap
}

// Restore replaces the strategy's mutable state from a snapshot. The
// snapshot's ladder must match the configured one.
func (s *Strategy) Restore(snap *models.StrategySnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if len(snap.StaticLevels) > 0 {
		configured := s.ladder.Levels()
		if len(snap.StaticLevels) != len(configured) {
			return fmt.Errorf("%s: snapshot ladder has %d levels, configured %d",
				s.name, len(snap.StaticLevels), len(configured))
		}
		for i, lv := range snap.StaticLevels {
			if lv != configured[i] {
				return fmt.Errorf("%s: snapshot level %v != configured %v at index %d",
					s.name, lv, configured[i], i)
			}
		}
	}
	if err := s.ladder.RestoreAnnotations(snap.Retraces); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	s.currentCashValue = snap.CurrentCashValue
	s.openTradeCount = snap.OpenTradeCount
	s.totalPnL = snap.TotalPnL
	s.price = copyFloat(snap.Price)
	s.lastPrice = copyFloat(snap.LastPrice)
	s.highPrice = copyFloat(snap.HighPrice)
	s.lowPrice = copyFloat(snap.LowPrice)
	s.barTime = copyTime(snap.BarTime)
	s.stats = snap.Stats
	s.lastEntryTime = copyTime(snap.LastEntryTime)
	s.lastBarTime = copyTime(snap.LastBarTime)
	s.entriesThisBar = make(map[int]struct{}, len(snap.EntriesThisBar))
	for _, i := range snap.EntriesThisBar {
		s.entriesThisBar[i] = struct{}{}
	}
	s.flattenedToday = snap.FlattenedToday
	s.flattenDate = snap.FlattenDate
	s.history = append([]models.HistoryRecord(nil), snap.TradeHistory...)
	s.openTrades = append([]models.OpenTrade(nil), snap.OpenTrades...)
	s.cumulativePnL = append([]float64(nil), snap.CumulativePnL...)

	for i := range s.openTrades {
		if err := s.openTrades[i].CheckSideInvariant(); err != nil {
			return fmt.Errorf("%s: restored trade invalid: %w", s.name, err)
		}
	}
	return nil
}

// LoadState pulls a persisted snapshot from the store, if one exists.
// Returns true when state was restored. A load failure is reported; the
// caller decides whether to start fresh.
func (s *Strategy) LoadState() (bool, error) {
	if s.store == nil {
		return false, nil
	}
	snap, found, err := s.store.LoadState(s.name)
	if err != nil {
		return false, fmt.Errorf("loading state for %s: %w", s.name, err)
	}
	if !found {
		s.logger.Info("no saved state, starting fresh")
		return false, nil
	}
	if err := s.Restore(snap); err != nil {
		return false, err
	}
	s.logger.WithFields(logrus.Fields{
		"open_trades": s.openTradeCount, "total_pnl": s.totalPnL,
		"history": len(s.history),
	}).Info("state restored")
	return true, nil
}

// PrintTradeStats logs the trade summary, recomputing statistics first.
func (s *Strategy) PrintTradeStats() {
	s.recomputeStats()
	s.logger.WithFields(logrus.Fields{
		"total_pnl":         s.stats.TotalPnL,
		"win_rate":          fmt.Sprintf("%.2f%%", s.stats.WinRate),
		"avg_winner":        s.stats.AvgWinner,
		"avg_loser":         s.stats.AvgLoser,
		"total_trades":      s.stats.TotalTrades,
		"reward_to_risk":    s.stats.RewardToRisk,
		"max_losing_streak": s.stats.MaxLosingStreak,
	}).Info("trade statistics")
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
