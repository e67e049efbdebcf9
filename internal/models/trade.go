package models

import (
	"fmt"
	"time"
)

// TradeSide discriminates long from short open trades. The original system
// inferred the side from entry price versus take-profit; that inequality is
// preserved as an invariant check in CheckSideInvariant.
type TradeSide string

const (
	// SideLong is a long trade: profits when price rises.
	SideLong TradeSide = "long"
	// SideShort is a short trade: profits when price falls.
	SideShort TradeSide = "short"
)

// TradeAction is the kind of a trade-history record.
type TradeAction string

const (
	// ActionBuy records a long entry fill.
	ActionBuy TradeAction = "BUY"
	// ActionSell records a short entry fill.
	ActionSell TradeAction = "SELL"
	// ActionExit records a stop, trailing-stop, or take-profit exit.
	ActionExit TradeAction = "EXIT"
	// ActionFlatten records a forced close ahead of the daily halt.
	ActionFlatten TradeAction = "FLATTEN"
)

// Closing reports whether the action realizes PnL.
func (a TradeAction) Closing() bool {
	return a == ActionExit || a == ActionFlatten
}

// OpenTrade is a single live position unit owned by exactly one strategy.
// Created on entry, destroyed on exit or flatten.
type OpenTrade struct {
	ID              string    `json:"id"`
	Side            TradeSide `json:"side"`
	EntryTime       time.Time `json:"entry_time"`
	EntryPrice      float64   `json:"entry_price"`
	StopLevel       float64   `json:"stop_level"`
	TrailingStop    *float64  `json:"trailing_stop,omitempty"`
	TriggeringLevel float64   `json:"triggering_level"`
	TakeProfitLevel float64   `json:"take_profit_level"`
}

// CheckSideInvariant verifies the tagged side against the price geometry:
// LONG iff entry < take-profit, and the stop on the losing side of entry.
func (t *OpenTrade) CheckSideInvariant() error {
	inferred := SideShort
	if t.EntryPrice < t.TakeProfitLevel {
		inferred = SideLong
	}
	if t.Side != inferred {
		return fmt.Errorf("trade %s tagged %s but prices imply %s (entry=%v tp=%v)",
			t.ID, t.Side, inferred, t.EntryPrice, t.TakeProfitLevel)
	}
	switch t.Side {
	case SideLong:
		if t.StopLevel >= t.EntryPrice {
			return fmt.Errorf("trade %s long stop %v not below entry %v", t.ID, t.StopLevel, t.EntryPrice)
		}
	case SideShort:
		if t.StopLevel <= t.EntryPrice {
			return fmt.Errorf("trade %s short stop %v not above entry %v", t.ID, t.StopLevel, t.EntryPrice)
		}
	}
	return nil
}

// HistoryRecord is one append-only trade-history row.
type HistoryRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Action    TradeAction `json:"action"`
	Price     float64     `json:"price"`
	PnL       float64     `json:"pnl"`
}

// SummaryStats are the cumulative performance statistics of a strategy,
// recomputed deterministically from the trade history.
type SummaryStats struct {
	TotalPnL        float64 `json:"total_pnl"`
	WinRate         float64 `json:"win_rate"`
	AvgWinner       float64 `json:"avg_winner"`
	AvgLoser        float64 `json:"avg_loser"`
	TotalTrades     int     `json:"total_trades"`
	RewardToRisk    float64 `json:"reward_to_risk"`
	MaxLosingStreak int     `json:"max_losing_streak"`
}
