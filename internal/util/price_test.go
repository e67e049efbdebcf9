package util

import "testing"

func TestTicksToPrice(t *testing.T) {
	cases := []struct {
		ticks float64
		want  float64
	}{
		{0, 0},
		{4, 1.0},
		{20, 5.0},
		{40, 10.0},
		{1, 0.25},
	}
	for _, c := range cases {
		if got := TicksToPrice(c.ticks); got != c.want {
			t.Errorf("TicksToPrice(%v) = %v, want %v", c.ticks, got, c.want)
		}
	}
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		x, tick, want float64
	}{
		{100.3, 0.25, 100.25},
		{100.4, 0.25, 100.5},
		{100.125, 0.25, 100.25},
		{99.99, 0, 99.99}, // non-positive tick leaves value unchanged
	}
	for _, c := range cases {
		if got := RoundToTick(c.x, c.tick); got != c.want {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", c.x, c.tick, got, c.want)
		}
	}
}
