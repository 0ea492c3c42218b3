package subscription

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

// Plan is a catalog entry subscribers sign up for.
// Price is the monthly base price; longer cycles multiply it.
type Plan struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Currency     string
	BillingCycle billing.Cycle
	TrialAllowed bool
	TrialDays    int
	Active       bool

	RemoteProductID        string
	RemoteMonthlyPriceID   string
	RemoteQuarterlyPriceID string
	RemoteAnnualPriceID    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks catalog invariants. Remote prices are created together
// with their product, so a price id without a product id is invalid.
func (p *Plan) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("plan id is required"))
	}
	if p.Name == "" {
		errs = append(errs, errors.New("plan name is required"))
	}
	if p.Price.IsNegative() {
		errs = append(errs, errors.New("plan price must not be negative"))
	}
	if err := billing.ValidateCurrency(p.Currency); err != nil {
		errs = append(errs, err)
	}
	if p.BillingCycle != "" && !p.BillingCycle.Valid() {
		errs = append(errs, billing.ErrUnknownCycle)
	}
	if p.TrialAllowed && p.TrialDays <= 0 {
		errs = append(errs, errors.New("trial days must be positive when trials are allowed"))
	}
	if p.RemoteProductID == "" && p.HasAnyRemotePrice() {
		errs = append(errs, errors.New("remote price ids require a remote product id"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPlan}, errs...)...)
	}
	return nil
}

// HasAnyRemotePrice reports whether any cycle has a remote price.
func (p *Plan) HasAnyRemotePrice() bool {
	return p.RemoteMonthlyPriceID != "" || p.RemoteQuarterlyPriceID != "" || p.RemoteAnnualPriceID != ""
}

// RemotePriceIDs returns the populated remote price ids keyed by cycle.
func (p *Plan) RemotePriceIDs() map[billing.Cycle]string {
	out := make(map[billing.Cycle]string, 3)
	for _, c := range billing.Cycles {
		if id := p.PriceIDFor(c); id != "" {
			out[c] = id
		}
	}
	return out
}

// PriceIDFor returns the remote price id for cycle c.
func (p *Plan) PriceIDFor(c billing.Cycle) string {
	switch c {
	case billing.Monthly:
		return p.RemoteMonthlyPriceID
	case billing.Quarterly:
		return p.RemoteQuarterlyPriceID
	case billing.Annual:
		return p.RemoteAnnualPriceID
	}
	return ""
}

// SetPriceIDFor stores the remote price id for cycle c.
func (p *Plan) SetPriceIDFor(c billing.Cycle, id string) {
	switch c {
	case billing.Monthly:
		p.RemoteMonthlyPriceID = id
	case billing.Quarterly:
		p.RemoteQuarterlyPriceID = id
	case billing.Annual:
		p.RemoteAnnualPriceID = id
	}
}

// ClearRemote drops every remote reference.
func (p *Plan) ClearRemote() {
	p.RemoteProductID = ""
	p.RemoteMonthlyPriceID = ""
	p.RemoteQuarterlyPriceID = ""
	p.RemoteAnnualPriceID = ""
}

// PriceFor returns the price of one cycle.
func (p *Plan) PriceFor(c billing.Cycle) decimal.Decimal {
	return c.Price(p.Price)
}

// DefaultCycle is the plan's cycle, monthly when unset.
func (p *Plan) DefaultCycle() billing.Cycle {
	if p.BillingCycle.Valid() {
		return p.BillingCycle
	}
	return billing.Monthly
}
