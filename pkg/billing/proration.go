package billing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Window is a closed-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TrialWindow returns the trial period starting at start. The second return
// value is false when days is not positive, meaning no trial applies.
func TrialWindow(start time.Time, days int) (Window, bool) {
	if days <= 0 {
		return Window{}, false
	}
	return Window{Start: start, End: start.AddDate(0, 0, days)}, true
}

// DaysRemaining returns the number of days from now until periodEnd,
// rounding partial days up. Never negative.
func DaysRemaining(now, periodEnd time.Time) int {
	d := periodEnd.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// CalculateProratedAmount returns the price difference for the unused part
// of a cycle when switching from oldPrice to newPrice:
//
//	(newPrice/cycleDays - oldPrice/cycleDays) * daysRemaining
//
// The result is zero when daysRemaining or cycleDays is not positive.
// A negative result is a credit owed to the customer.
func CalculateProratedAmount(oldPrice, newPrice decimal.Decimal, daysRemaining, cycleDays int) decimal.Decimal {
	if daysRemaining <= 0 || cycleDays <= 0 {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(int64(cycleDays)))
}

// Proration is the outcome of a mid-cycle price change.
type Proration struct {
	Amount        decimal.Decimal
	DaysRemaining int
	CycleDays     int
}

// IsCharge reports whether the customer owes money.
func (p Proration) IsCharge() bool { return p.Amount.IsPositive() }

// IsCredit reports whether the customer is owed money.
func (p Proration) IsCredit() bool { return p.Amount.IsNegative() }

// Prorate computes the proration for a plan change at now within a cycle
// ending at periodEnd.
func Prorate(oldPrice, newPrice decimal.Decimal, c Cycle, now, periodEnd time.Time) Proration {
	days := DaysRemaining(now, periodEnd)
	return Proration{
		Amount:        CalculateProratedAmount(oldPrice, newPrice, days, c.Days()),
		DaysRemaining: days,
		CycleDays:     c.Days(),
	}
}

// ValidateCurrency checks that code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if _, err := currency.ParseISO(code); err != nil {
		return ErrUnknownCurrency
	}
	return nil
}

// ToMinorUnits converts amount into the smallest unit of the currency
// (cents for USD, yen for JPY), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, code string) (int64, error) {
	scale, err := currencyScale(code)
	if err != nil {
		return 0, err
	}
	return amount.Shift(scale).Round(0).IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, code string) (decimal.Decimal, error) {
	scale, err := currencyScale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -scale), nil
}

func currencyScale(code string) (int32, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, ErrUnknownCurrency
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}
