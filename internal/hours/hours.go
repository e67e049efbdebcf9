// Package hours classifies timestamps against the CME equity index futures
// trading schedule. All rules are evaluated in exchange time
// (America/Chicago) so daylight-saving transitions are handled by the
// timezone database rather than fixed offsets.
//
// Standard trading day:
//   - Daily close: 4:00 PM CT; reopens 5:00 PM CT.
//   - Saturday closed all day; Sunday closed until 5:00 PM CT.
//   - Flatten window: the 20 minutes before close, during which no new
//     entries are allowed and open positions are force-closed once.
//
// Early closes on holidays are supplied through an optional calendar.
package hours

import (
	"fmt"
	"time"
)

// Status is the classification of a timestamp against the trading schedule.
type Status int

const (
	// StatusClosed means the market is closed; no entries, exits still clear.
	StatusClosed Status = iota
	// StatusFlattenWindow is the pre-close window; treated as closed for
	// entry purposes and triggers a one-shot flatten.
	StatusFlattenWindow
	// StatusOpen means normal trading.
	StatusOpen
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusFlattenWindow:
		return "flatten_window"
	case StatusOpen:
		return "open"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

const (
	closeHour    = 16
	closeMinute  = 0
	reopenHour   = 17
	reopenMinute = 0

	// FlattenLead is how long before the close the flatten window opens.
	FlattenLead = 20 * time.Minute

	exchangeTZ = "America/Chicago"
	dateLayout = "2006-01-02"
)

// ClockTime is a wall-clock close time for an early-close calendar entry.
type ClockTime struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// Calendar maps exchange-local dates (2006-01-02) to early close times.
type Calendar map[string]ClockTime

// Oracle is a pure classifier over timestamps. It holds no mutable state.
type Oracle struct {
	loc      *time.Location
	calendar Calendar
}

// NewOracle loads the exchange timezone and captures the optional
// early-close calendar. A nil calendar means standard closes every day.
func NewOracle(calendar Calendar) (*Oracle, error) {
	loc, err := time.LoadLocation(exchangeTZ)
	if err != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", err)
	}
	return &Oracle{loc: loc, calendar: calendar}, nil
}

// Location returns the exchange timezone.
func (o *Oracle) Location() *time.Location { return o.loc }

// ExchangeDate returns the exchange-local calendar date (2006-01-02) of t.
func (o *Oracle) ExchangeDate(t time.Time) string {
	return t.In(o.loc).Format(dateLayout)
}

// closeFor returns the close time for the exchange-local day containing ct.
func (o *Oracle) closeFor(ct time.Time) time.Time {
	h, m := closeHour, closeMinute
	if early, ok := o.calendar[ct.Format(dateLayout)]; ok {
		h, m = early.Hour, early.Minute
	}
	return time.Date(ct.Year(), ct.Month(), ct.Day(), h, m, 0, 0, o.loc)
}

func (o *Oracle) reopenFor(ct time.Time) time.Time {
	return time.Date(ct.Year(), ct.Month(), ct.Day(), reopenHour, reopenMinute, 0, 0, o.loc)
}

// Classify converts t to exchange time and returns its schedule status with
// a human-readable reason.
func (o *Oracle) Classify(t time.Time) (Status, string) {
	ct := t.In(o.loc)
	reopen := o.reopenFor(ct)

	switch ct.Weekday() {
	case time.Saturday:
		return StatusClosed, "market closed (Saturday)"
	case time.Sunday:
		if ct.Before(reopen) {
			return StatusClosed, fmt.Sprintf("market closed (Sunday, opens %02d:%02d CT)", reopenHour, reopenMinute)
		}
		return StatusOpen, "trading allowed (Sunday session)"
	}

	closeAt := o.closeFor(ct)
	flattenAt := closeAt.Add(-FlattenLead)

	if !ct.Before(closeAt) && ct.Before(reopen) {
		return StatusClosed, fmt.Sprintf("market closed (%s - %s CT)",
			closeAt.Format("15:04"), reopen.Format("15:04"))
	}
	if !ct.Before(flattenAt) && ct.Before(closeAt) {
		return StatusFlattenWindow, fmt.Sprintf("flatten window (%s - %s CT)",
			flattenAt.Format("15:04"), closeAt.Format("15:04"))
	}
	return StatusOpen, fmt.Sprintf("trading allowed (%s %s CT)",
		ct.Weekday(), ct.Format("15:04"))
}

// TradingAllowed reports whether new entries are permitted at t. The flatten
// window counts as not allowed.
func (o *Oracle) TradingAllowed(t time.Time) bool {
	s, _ := o.Classify(t)
	return s == StatusOpen
}

// InFlattenWindow reports whether t falls in the pre-close flatten window.
func (o *Oracle) InFlattenWindow(t time.Time) bool {
	s, _ := o.Classify(t)
	return s == StatusFlattenWindow
}
