package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// SynchronizePlan creates the remote product and one price per billing
// cycle for a plan that has none, or refreshes the product's name and
// description and fills in missing prices for one that has.
//
// Existing prices are never modified: gateways treat prices as immutable,
// so a price change goes through RepricePlan. Remote ids are saved as soon
// as they exist, so a partial failure can be resumed without duplicates.
func (e *Engine) SynchronizePlan(ctx context.Context, planID string) (*subscription.Plan, error) {
	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	err = e.syncPlan(ctx, plan)
	e.record(ctx, "plan.synchronized", "plan", plan.ID, err, map[string]any{"product_id": plan.RemoteProductID})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) syncPlan(ctx context.Context, plan *subscription.Plan) error {
	if plan.RemoteProductID == "" {
		id, err := e.gw.CreateProduct(ctx, plan.Name, plan.Description)
		if err != nil {
			return errors.Join(subscription.ErrRemoteSyncFailure, fmt.Errorf("create product: %w", err))
		}
		plan.RemoteProductID = id
		if err := e.savePlan(ctx, plan); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelError, "remote product created but plan not saved",
				logger.PlanID(plan.ID),
				logger.RemoteID(id),
				logger.Error(err),
			)
			return err
		}
	} else {
		err := e.gw.UpdateProduct(ctx, plan.RemoteProductID, plan.Name, plan.Description)
		switch {
		case errors.Is(err, gateway.ErrNotSupported):
			e.logger.LogAttrs(ctx, slog.LevelDebug, "gateway does not support product updates", logger.PlanID(plan.ID))
		case err != nil:
			return errors.Join(subscription.ErrRemoteSyncFailure, fmt.Errorf("update product: %w", err))
		}
	}

	changed := false
	var errs []error
	for _, c := range billing.Cycles {
		if plan.PriceIDFor(c) != "" {
			continue
		}
		id, err := e.createPrice(ctx, plan, c, plan.Price)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plan.SetPriceIDFor(c, id)
		changed = true
	}
	if changed {
		if err := e.savePlan(ctx, plan); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{subscription.ErrRemoteSyncFailure}, errs...)...)
	}
	return nil
}

func (e *Engine) createPrice(ctx context.Context, plan *subscription.Plan, c billing.Cycle, base decimal.Decimal) (string, error) {
	unit, count := c.Interval()
	id, err := e.gw.CreatePrice(ctx, gateway.PriceParams{
		ProductID:     plan.RemoteProductID,
		Amount:        c.Price(base),
		Currency:      plan.Currency,
		IntervalUnit:  unit,
		IntervalCount: count,
	})
	if err != nil {
		return "", fmt.Errorf("create %s price: %w", c, err)
	}
	return id, nil
}

func (e *Engine) savePlan(ctx context.Context, plan *subscription.Plan) error {
	plan.UpdatedAt = e.now()
	return e.plans.SavePlan(ctx, plan)
}

// RepricePlan sets a new base price: it creates fresh remote prices for
// every cycle, repoints the plan at them and deactivates the old ones.
// Existing remote subscriptions keep their old price until changed.
func (e *Engine) RepricePlan(ctx context.Context, planID string, price decimal.Decimal) (*subscription.Plan, error) {
	if price.IsNegative() {
		return nil, errors.Join(subscription.ErrInvalidInput, errors.New("price must not be negative"))
	}
	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.RemoteProductID == "" {
		plan.Price = price
		if err := e.savePlan(ctx, plan); err != nil {
			return nil, err
		}
		return e.SynchronizePlan(ctx, planID)
	}

	old := plan.RemotePriceIDs()
	fresh := make(map[billing.Cycle]string, len(billing.Cycles))
	for _, c := range billing.Cycles {
		id, err := e.createPrice(ctx, plan, c, price)
		if err != nil {
			for _, created := range fresh {
				if derr := e.gw.DeactivatePrice(ctx, created); derr != nil && !ignorable(derr) {
					e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deactivate orphaned price",
						logger.PlanID(plan.ID), logger.RemoteID(created), logger.Error(derr))
				}
			}
			return nil, errors.Join(subscription.ErrRemoteSyncFailure, err)
		}
		fresh[c] = id
	}

	plan.Price = price
	for c, id := range fresh {
		plan.SetPriceIDFor(c, id)
	}
	if err := e.savePlan(ctx, plan); err != nil {
		return nil, err
	}
	for _, id := range old {
		if err := e.gw.DeactivatePrice(ctx, id); err != nil && !ignorable(err) {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deactivate replaced price",
				logger.PlanID(plan.ID), logger.RemoteID(id), logger.Error(err))
		}
	}
	e.record(ctx, "plan.repriced", "plan", plan.ID, nil, map[string]any{"price": price.String()})
	return plan, nil
}

// SynchronizePlanDeletion deactivates every remote price of the plan and
// deletes its remote product, then clears the plan's remote references.
// A plan without remote resources is a no-op.
func (e *Engine) SynchronizePlanDeletion(ctx context.Context, planID string) error {
	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.RemoteProductID == "" && !plan.HasAnyRemotePrice() {
		return nil
	}
	err = e.teardownPlan(ctx, plan)
	if err == nil {
		plan.ClearRemote()
		err = e.savePlan(ctx, plan)
	}
	e.record(ctx, "plan.remote_deleted", "plan", plan.ID, err, nil)
	return err
}

func (e *Engine) teardownPlan(ctx context.Context, plan *subscription.Plan) error {
	var errs []error
	for c, id := range plan.RemotePriceIDs() {
		if err := e.gw.DeactivatePrice(ctx, id); err != nil && !ignorable(err) {
			errs = append(errs, fmt.Errorf("deactivate %s price %s: %w", c, id, err))
		}
	}
	if plan.RemoteProductID != "" {
		if err := e.gw.DeleteProduct(ctx, plan.RemoteProductID); err != nil && !ignorable(err) {
			errs = append(errs, fmt.Errorf("delete product %s: %w", plan.RemoteProductID, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{subscription.ErrRemoteSyncFailure}, errs...)...)
	}
	return nil
}

// ValidatePlanSynchronization compares the plan with its remote product
// and prices. It never changes anything.
func (e *Engine) ValidatePlanSynchronization(ctx context.Context, planID string) (*ValidationResult, error) {
	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	res := &ValidationResult{}

	if plan.RemoteProductID == "" {
		res.add(IssueMissingProduct, "plan has no remote product", RecommendSynchronizePlan)
	} else {
		product, err := e.gw.GetProduct(ctx, plan.RemoteProductID)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			res.add(IssueProductNotFound, fmt.Sprintf("remote product %s does not exist", plan.RemoteProductID), RecommendRepairPlan)
		case err != nil:
			res.add(IssueRemoteError, fmt.Sprintf("get product: %v", err), "")
		default:
			if !product.Active {
				res.add(IssueProductInactive, fmt.Sprintf("remote product %s is archived", product.ID), RecommendRepairPlan)
			}
			if product.Name != plan.Name || product.Description != plan.Description {
				res.add(IssueMetadataMismatch, "remote product name or description differs", RecommendSynchronizePlan)
			}
		}
	}

	for _, c := range billing.Cycles {
		e.validatePrice(ctx, res, plan, c)
	}
	return res.finish(), nil
}

func (e *Engine) validatePrice(ctx context.Context, res *ValidationResult, plan *subscription.Plan, c billing.Cycle) {
	id := plan.PriceIDFor(c)
	if id == "" {
		res.add(IssueMissingPrice, fmt.Sprintf("no remote %s price", c), RecommendSynchronizePlan)
		return
	}
	price, err := e.gw.GetPrice(ctx, id)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		res.add(IssuePriceNotFound, fmt.Sprintf("remote %s price %s does not exist", c, id), RecommendRepairPlan)
		return
	case err != nil:
		res.add(IssueRemoteError, fmt.Sprintf("get %s price: %v", c, err), "")
		return
	}
	if !price.Active {
		res.add(IssuePriceInactive, fmt.Sprintf("remote %s price %s is inactive", c, id), RecommendRepairPlan)
	}
	unit, count := c.Interval()
	want := plan.PriceFor(c)
	switch {
	case !price.Amount.Equal(want):
		res.add(IssuePriceMismatch, fmt.Sprintf("%s price is %s remotely, %s locally", c, price.Amount, want), RecommendRepairPlan)
	case !strings.EqualFold(price.Currency, plan.Currency):
		res.add(IssuePriceMismatch, fmt.Sprintf("%s price currency is %s remotely, %s locally", c, price.Currency, plan.Currency), RecommendRepairPlan)
	case price.IntervalUnit != unit || price.IntervalCount != count:
		res.add(IssuePriceMismatch, fmt.Sprintf("%s price bills every %d %s", c, price.IntervalCount, price.IntervalUnit), RecommendRepairPlan)
	case plan.RemoteProductID != "" && price.ProductID != "" && price.ProductID != plan.RemoteProductID:
		res.add(IssuePriceMismatch, fmt.Sprintf("%s price belongs to product %s", c, price.ProductID), RecommendRepairPlan)
	}
}

// RepairPlanSynchronization tears down whatever remote product and prices
// the plan references and recreates them from the local record.
func (e *Engine) RepairPlanSynchronization(ctx context.Context, planID string) (*subscription.Plan, error) {
	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := e.teardownPlan(ctx, plan); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "plan teardown incomplete, rebuilding anyway",
			logger.PlanID(plan.ID), logger.Error(err))
	}
	plan.ClearRemote()
	if err := e.savePlan(ctx, plan); err != nil {
		return nil, err
	}
	err = e.syncPlan(ctx, plan)
	e.record(ctx, "plan.repaired", "plan", plan.ID, err, map[string]any{"product_id": plan.RemoteProductID})
	if err != nil {
		return nil, err
	}
	return plan, nil
}
