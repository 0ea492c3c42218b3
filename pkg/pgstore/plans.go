package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

var planColumns = []string{
	"id", "name", "description", "price", "currency", "billing_cycle",
	"trial_allowed", "trial_days", "active",
	"remote_product_id", "remote_monthly_price_id", "remote_quarterly_price_id", "remote_annual_price_id",
	"created_at", "updated_at",
}

var (
	selectPlan = "SELECT " + strings.Join(planColumns, ", ") + " FROM plans"
	upsertPlan = buildPlanUpsert()
)

func buildPlanUpsert() string {
	sets := make([]string, 0, len(planColumns))
	for _, col := range planColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	return "INSERT INTO plans (" + strings.Join(planColumns, ", ") + ") VALUES (" +
		placeholders(len(planColumns)) + ") ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
}

func scanPlan(row pgx.Row) (*subscription.Plan, error) {
	var (
		p     subscription.Plan
		cycle string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &cycle,
		&p.TrialAllowed, &p.TrialDays, &p.Active,
		&p.RemoteProductID, &p.RemoteMonthlyPriceID, &p.RemoteQuarterlyPriceID, &p.RemoteAnnualPriceID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.BillingCycle = billing.Cycle(cycle)
	return &p, nil
}

func (s *SubscriptionStore) GetPlan(ctx context.Context, id string) (*subscription.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, selectPlan+" WHERE id = $1", id))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *SubscriptionStore) ListPlans(ctx context.Context) ([]*subscription.Plan, error) {
	rows, err := s.pool.Query(ctx, selectPlan+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*subscription.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) SavePlan(ctx context.Context, p *subscription.Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, upsertPlan,
		p.ID, p.Name, p.Description, p.Price, p.Currency, string(p.BillingCycle),
		p.TrialAllowed, p.TrialDays, p.Active,
		p.RemoteProductID, p.RemoteMonthlyPriceID, p.RemoteQuarterlyPriceID, p.RemoteAnnualPriceID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}
