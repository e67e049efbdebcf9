package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bingolead-stack/levelbot/internal/hours"
	"github.com/bingolead-stack/levelbot/internal/strategy"
)

// StrategyConfig is one entry in the JSON strategies file. Offset fields
// are in ticks; symbol_size is USD per 1.0 price move.
type StrategyConfig struct {
	Name                 string               `json:"name"`
	EntryOffset          float64              `json:"entry_offset"`
	TakeProfitOffset     float64              `json:"take_profit_offset"`
	StopLossOffset       float64              `json:"stop_loss_offset"`
	TrailTrigger         int                  `json:"trail_trigger"`
	ReEntryDistance      int                  `json:"re_entry_distance"`
	MaxOpenTrades        int                  `json:"max_open_trades"`
	MaxContractsPerTrade int                  `json:"max_contracts_per_trade"`
	SymbolSize           float64              `json:"symbol_size"`
	IsTradingLong        *bool                `json:"is_trading_long,omitempty"`
	UseTradingHours      bool                 `json:"use_trading_hours"`
	EarlyCloseCalendar   map[string][2]int    `json:"early_close_calendar,omitempty"`
	StaticLevels         []float64            `json:"static_levels"`
	LongDateRanges       []DateRangeConfig    `json:"long_date_ranges,omitempty"`
	ShortDateRanges      []DateRangeConfig    `json:"short_date_ranges,omitempty"`
}

// DateRangeConfig is an inclusive calendar-date window.
type DateRangeConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// LoadStrategies parses the JSON strategies array at path. defaultLong is
// applied when a strategy omits is_trading_long.
func LoadStrategies(path string, defaultLong bool) ([]strategy.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategies file: %w", err)
	}

	var raw []StrategyConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing strategies file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("strategies file %s defines no strategies", path)
	}

	seen := make(map[string]bool, len(raw))
	params := make([]strategy.Params, 0, len(raw))
	for _, sc := range raw {
		if seen[sc.Name] {
			return nil, fmt.Errorf("duplicate strategy name %q", sc.Name)
		}
		seen[sc.Name] = true

		p, err := sc.toParams(defaultLong)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func (sc *StrategyConfig) toParams(defaultLong bool) (strategy.Params, error) {
	isLong := defaultLong
	if sc.IsTradingLong != nil {
		isLong = *sc.IsTradingLong
	}

	var calendar hours.Calendar
	if len(sc.EarlyCloseCalendar) > 0 {
		calendar = make(hours.Calendar, len(sc.EarlyCloseCalendar))
		for date, hm := range sc.EarlyCloseCalendar {
			calendar[date] = hours.ClockTime{Hour: hm[0], Minute: hm[1]}
		}
	}

	longRanges, err := parseRanges(sc.Name, "long_date_ranges", sc.LongDateRanges)
	if err != nil {
		return strategy.Params{}, err
	}
	shortRanges, err := parseRanges(sc.Name, "short_date_ranges", sc.ShortDateRanges)
	if err != nil {
		return strategy.Params{}, err
	}

	return strategy.Params{
		Name:                 sc.Name,
		EntryOffsetTicks:     sc.EntryOffset,
		TakeProfitTicks:      sc.TakeProfitOffset,
		StopLossTicks:        sc.StopLossOffset,
		TrailTrigger:         sc.TrailTrigger,
		ReEntryDistance:      sc.ReEntryDistance,
		MaxOpenTrades:        sc.MaxOpenTrades,
		MaxContractsPerTrade: sc.MaxContractsPerTrade,
		SymbolSize:           sc.SymbolSize,
		IsTradingLong:        isLong,
		UseTradingHours:      sc.UseTradingHours,
		EarlyCloseCalendar:   calendar,
		StaticLevels:         sc.StaticLevels,
		LongDateRanges:       longRanges,
		ShortDateRanges:      shortRanges,
	}, nil
}

func parseRanges(name, field string, raw []DateRangeConfig) ([]strategy.DateRange, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]strategy.DateRange, 0, len(raw))
	for _, rc := range raw {
		r, err := strategy.ParseDateRange(rc.Start, rc.End)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", name, field, err)
		}
		out = append(out, r)
	}
	return out, nil
}
