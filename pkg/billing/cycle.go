package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cycle is the billing period of a subscription.
type Cycle string

const (
	Monthly   Cycle = "monthly"
	Quarterly Cycle = "quarterly"
	Annual    Cycle = "annual"
)

// Cycles lists every supported cycle in ascending length.
var Cycles = []Cycle{Monthly, Quarterly, Annual}

// ParseCycle converts a string into a Cycle. Matching is case-insensitive
// and accepts "yearly" as an alias of annual.
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Monthly):
		return Monthly, nil
	case string(Quarterly):
		return Quarterly, nil
	case string(Annual), "yearly":
		return Annual, nil
	default:
		return "", ErrUnknownCycle
	}
}

func (c Cycle) String() string { return string(c) }

// Valid reports whether c is one of the supported cycles.
func (c Cycle) Valid() bool {
	switch c {
	case Monthly, Quarterly, Annual:
		return true
	}
	return false
}

// Days returns the nominal cycle length used for proration: 30, 90 or 365.
// Returns 0 for an unknown cycle.
func (c Cycle) Days() int {
	switch c {
	case Monthly:
		return 30
	case Quarterly:
		return 90
	case Annual:
		return 365
	}
	return 0
}

// Months returns the number of calendar months one cycle spans.
func (c Cycle) Months() int {
	switch c {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case Annual:
		return 12
	}
	return 0
}

// Multiplier is the factor applied to a plan's monthly base price to get
// the price for one cycle.
func (c Cycle) Multiplier() int64 {
	return int64(c.Months())
}

// Price returns the price of one cycle for a monthly base price.
func (c Cycle) Price(base decimal.Decimal) decimal.Decimal {
	return base.Mul(decimal.NewFromInt(c.Multiplier()))
}

// Interval returns the recurring interval in the form payment gateways
// expect it: a unit ("month" or "year") and a count.
func (c Cycle) Interval() (unit string, count int64) {
	switch c {
	case Monthly:
		return "month", 1
	case Quarterly:
		return "month", 3
	case Annual:
		return "year", 1
	}
	return "", 0
}

// NextBillingDate returns the date one cycle after from.
// Calendar months are added, so Jan 31 + 1 month normalizes to early March.
func NextBillingDate(from time.Time, c Cycle) time.Time {
	return from.AddDate(0, c.Months(), 0)
}

// AdvanceBillingDate moves current forward by whole cycles until it is
// strictly after now. A date already in the future is returned unchanged.
func AdvanceBillingDate(current time.Time, c Cycle, now time.Time) time.Time {
	if c.Months() == 0 {
		return current
	}
	next := current
	for !next.After(now) {
		next = NextBillingDate(next, c)
	}
	return next
}
