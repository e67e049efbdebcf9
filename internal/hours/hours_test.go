package hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOracle(t *testing.T, cal Calendar) *Oracle {
	t.Helper()
	o, err := NewOracle(cal)
	require.NoError(t, err)
	return o
}

func ct(o *Oracle, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, o.Location())
}

func TestClassifyWeekday(t *testing.T) {
	o := mustOracle(t, nil)
	// Wednesday 2025-06-11.
	tests := []struct {
		name string
		at   time.Time
		want Status
	}{
		{"mid session", ct(o, 2025, 6, 11, 10, 30), StatusOpen},
		{"just before flatten window", ct(o, 2025, 6, 11, 15, 39), StatusOpen},
		{"flatten window opens", ct(o, 2025, 6, 11, 15, 40), StatusFlattenWindow},
		{"last minute before close", ct(o, 2025, 6, 11, 15, 59), StatusFlattenWindow},
		{"at close", ct(o, 2025, 6, 11, 16, 0), StatusClosed},
		{"during halt", ct(o, 2025, 6, 11, 16, 30), StatusClosed},
		{"at reopen", ct(o, 2025, 6, 11, 17, 0), StatusOpen},
		{"overnight session", ct(o, 2025, 6, 11, 23, 0), StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := o.Classify(tt.at)
			assert.Equal(t, tt.want, got, reason)
		})
	}
}

func TestClassifyWeekend(t *testing.T) {
	o := mustOracle(t, nil)

	// Saturday 2025-06-14: closed all day.
	for _, h := range []int{0, 9, 12, 18, 23} {
		got, _ := o.Classify(ct(o, 2025, 6, 14, h, 0))
		assert.Equal(t, StatusClosed, got, "saturday %02d:00", h)
	}

	// Sunday 2025-06-15: closed until 17:00 CT, then open.
	got, _ := o.Classify(ct(o, 2025, 6, 15, 16, 59))
	assert.Equal(t, StatusClosed, got)
	got, _ = o.Classify(ct(o, 2025, 6, 15, 17, 0))
	assert.Equal(t, StatusOpen, got)
}

func TestClassifyEarlyClose(t *testing.T) {
	// Thanksgiving-style 12:15 close.
	o := mustOracle(t, Calendar{"2025-11-28": {Hour: 12, Minute: 15}})

	got, _ := o.Classify(ct(o, 2025, 11, 28, 11, 54))
	assert.Equal(t, StatusOpen, got)
	got, _ = o.Classify(ct(o, 2025, 11, 28, 11, 55))
	assert.Equal(t, StatusFlattenWindow, got)
	got, _ = o.Classify(ct(o, 2025, 11, 28, 12, 15))
	assert.Equal(t, StatusClosed, got)
	// Early close still reopens at the standard 17:00.
	got, _ = o.Classify(ct(o, 2025, 11, 28, 17, 0))
	assert.Equal(t, StatusOpen, got)

	// Other dates are unaffected by the calendar.
	got, _ = o.Classify(ct(o, 2025, 11, 26, 12, 30))
	assert.Equal(t, StatusOpen, got)
}

func TestClassifyConvertsToExchangeTime(t *testing.T) {
	o := mustOracle(t, nil)

	// 20:50 UTC on a summer weekday is 15:50 CDT: inside the flatten window.
	at := time.Date(2025, 6, 11, 20, 50, 0, 0, time.UTC)
	got, _ := o.Classify(at)
	assert.Equal(t, StatusFlattenWindow, got)

	// 21:50 UTC on a winter weekday is 15:50 CST as well.
	at = time.Date(2025, 1, 15, 21, 50, 0, 0, time.UTC)
	got, _ = o.Classify(at)
	assert.Equal(t, StatusFlattenWindow, got)
}

func TestTradingAllowedAndFlattenWindow(t *testing.T) {
	o := mustOracle(t, nil)

	open := ct(o, 2025, 6, 11, 10, 0)
	flatten := ct(o, 2025, 6, 11, 15, 45)
	closed := ct(o, 2025, 6, 11, 16, 30)

	assert.True(t, o.TradingAllowed(open))
	assert.False(t, o.TradingAllowed(flatten))
	assert.False(t, o.TradingAllowed(closed))

	assert.False(t, o.InFlattenWindow(open))
	assert.True(t, o.InFlattenWindow(flatten))
	assert.False(t, o.InFlattenWindow(closed))
}

func TestExchangeDate(t *testing.T) {
	o := mustOracle(t, nil)
	// 02:00 UTC is still the previous day in Chicago.
	at := time.Date(2025, 6, 12, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-11", o.ExchangeDate(at))
}
