package models

import "time"

// StrategySnapshot is the complete durable state of one strategy. The
// persistence store writes and reads exactly this shape; feeding the same
// bar stream to a restored snapshot must reproduce the uninterrupted run.
type StrategySnapshot struct {
	// Scalar fields (main table).
	CurrentCashValue float64
	OpenTradeCount   int
	TotalPnL         float64

	// Last-observed market state; nil until the first bar arrives.
	Price     *float64
	LastPrice *float64
	HighPrice *float64
	LowPrice  *float64
	BarTime   *time.Time

	Stats SummaryStats

	// Entry rate limiting.
	LastEntryTime  *time.Time
	LastBarTime    *time.Time
	EntriesThisBar []int

	// Intraday flatten bookkeeping. FlattenDate is the exchange-local date
	// (2006-01-02) on which the flatten occurred.
	FlattenedToday bool
	FlattenDate    string

	// Child-table collections.
	TradeHistory  []HistoryRecord
	OpenTrades    []OpenTrade
	Retraces      []RetraceDirection
	CumulativePnL []float64
	StaticLevels  []float64
}
