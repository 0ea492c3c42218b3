package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

type catalogFile struct {
	Plans []catalogPlan `yaml:"plans"`
}

type catalogPlan struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Price        string `yaml:"price"`
	Currency     string `yaml:"currency"`
	BillingCycle string `yaml:"billing_cycle"`
	TrialDays    int    `yaml:"trial_days"`
	Inactive     bool   `yaml:"inactive"`
}

// LoadPlansYAML decodes a plan catalog:
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    price: "29.00"
//	    currency: USD
//	    billing_cycle: monthly
//	    trial_days: 14
//
// Prices are strings so they decode without float rounding.
func LoadPlansYAML(r io.Reader) ([]*Plan, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidPlan, err)
	}

	plans := make([]*Plan, 0, len(f.Plans))
	seen := make(map[string]bool, len(f.Plans))
	for i, cp := range f.Plans {
		price, err := decimal.NewFromString(cp.Price)
		if err != nil {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("plan[%d] %q: price: %w", i, cp.ID, err))
		}
		var cycle billing.Cycle
		if cp.BillingCycle != "" {
			if cycle, err = billing.ParseCycle(cp.BillingCycle); err != nil {
				return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("plan[%d] %q: %w", i, cp.ID, err))
			}
		}
		p := &Plan{
			ID:           cp.ID,
			Name:         cp.Name,
			Description:  cp.Description,
			Price:        price,
			Currency:     cp.Currency,
			BillingCycle: cycle,
			TrialAllowed: cp.TrialDays > 0,
			TrialDays:    cp.TrialDays,
			Active:       !cp.Inactive,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan[%d]: %w", i, err)
		}
		if seen[p.ID] {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		seen[p.ID] = true
		plans = append(plans, p)
	}
	return plans, nil
}

// SeedPlans stores catalog plans, keeping remote ids already recorded for
// existing plans.
func SeedPlans(ctx context.Context, store PlanStore, plans []*Plan, now time.Time) error {
	for _, p := range plans {
		existing, err := store.GetPlan(ctx, p.ID)
		switch {
		case err == nil:
			p.RemoteProductID = existing.RemoteProductID
			p.RemoteMonthlyPriceID = existing.RemoteMonthlyPriceID
			p.RemoteQuarterlyPriceID = existing.RemoteQuarterlyPriceID
			p.RemoteAnnualPriceID = existing.RemoteAnnualPriceID
			p.CreatedAt = existing.CreatedAt
		case errors.Is(err, ErrPlanNotFound):
			p.CreatedAt = now
		default:
			return err
		}
		p.UpdatedAt = now
		if err := store.SavePlan(ctx, p); err != nil {
			return fmt.Errorf("save plan %q: %w", p.ID, err)
		}
	}
	return nil
}
