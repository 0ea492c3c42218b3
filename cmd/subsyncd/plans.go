package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type planSynchronizer interface {
	SynchronizePlan(ctx context.Context, planID string) (*subscription.Plan, error)
}

// seedPlans upserts the catalog from path, keeping remote ids of plans
// already stored, and synchronizes each plan to the gateway. Gateway
// errors are logged so a gateway outage does not block startup.
func seedPlans(ctx context.Context, path string, plans subscription.PlanStore, sync planSynchronizer, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open plan catalog: %w", err)
	}
	defer f.Close()

	catalog, err := subscription.LoadPlansYAML(f)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range catalog {
		existing, err := plans.GetPlan(ctx, p.ID)
		switch {
		case err == nil:
			p.CreatedAt = existing.CreatedAt
			p.RemoteProductID = existing.RemoteProductID
			p.RemoteMonthlyPriceID = existing.RemoteMonthlyPriceID
			p.RemoteQuarterlyPriceID = existing.RemoteQuarterlyPriceID
			p.RemoteAnnualPriceID = existing.RemoteAnnualPriceID
		case errors.Is(err, subscription.ErrPlanNotFound):
			p.CreatedAt = now
		default:
			return err
		}
		p.UpdatedAt = now
		if err := plans.SavePlan(ctx, p); err != nil {
			return fmt.Errorf("save plan %q: %w", p.ID, err)
		}

		if _, err := sync.SynchronizePlan(ctx, p.ID); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, gateway.ErrNotSupported) {
				level = slog.LevelDebug
			}
			log.LogAttrs(ctx, level, "plan not synchronized",
				logger.PlanID(p.ID),
				logger.Error(err),
			)
		}
	}

	log.LogAttrs(ctx, slog.LevelInfo, "plan catalog seeded", slog.Int("plans", len(catalog)))
	return nil
}
