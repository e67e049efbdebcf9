// Package models provides the data structures shared between the strategy
// state machine, the ingest dispatcher, and the persistence layer.
package models

import (
	"fmt"
	"math"
)

// Bar is an OHLC quadruple for a single time interval.
type Bar struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Validate rejects bars whose price fields are unusable. A bad bar is fatal
// to the caller: the bar is dropped, never fed to a strategy.
func (b Bar) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("bar %s is not a finite number", f.name)
		}
		if f.value <= 0 {
			return fmt.Errorf("bar %s must be positive, got %v", f.name, f.value)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar high %v below low %v", b.High, b.Low)
	}
	return nil
}
