package types

import "time"

// Period is a recurring accounting window. Allowances reset their spent
// counter at period boundaries; subscriptions bill once per period.
type Period string

// Period values. Monthly is a fixed 30-day approximation, not
// calendar-month aware.
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Fixed period durations in seconds.
const (
	secondsDaily   = 86400
	secondsWeekly  = 604800
	secondsMonthly = 2592000 // 30 days
)

// Duration returns the fixed wall-clock length of the period.
// Returns 0 for an unknown period.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodDaily:
		return secondsDaily * time.Second
	case PeriodWeekly:
		return secondsWeekly * time.Second
	case PeriodMonthly:
		return secondsMonthly * time.Second
	default:
		return 0
	}
}

// Valid reports whether p is one of the defined periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}
