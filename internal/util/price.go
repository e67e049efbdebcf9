// Package util provides common utility functions for price calculations.
package util

import "math"

// TickSize is the minimum price increment for ES/MES equity index futures.
const TickSize = 0.25

// TicksToPrice converts a distance expressed in ticks to a price distance.
// Strategy offsets are configured in ticks; four ticks make one index point.
func TicksToPrice(ticks float64) float64 {
	return ticks * TickSize
}

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.25, 100.3 becomes 100.25.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
