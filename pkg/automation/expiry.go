package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// ProcessExpiredSubscriptions expires active subscriptions that will not
// renew and whose billing period has ended.
func (s *Service) ProcessExpiredSubscriptions(ctx context.Context, now time.Time) (*BatchResult, error) {
	now = s.at(now)
	subs, err := s.list(ctx, subscription.Filter{
		Statuses:          []subscription.Status{subscription.StatusActive},
		AutoRenew:         boolPtr(false),
		NextBillingBefore: now,
	})
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	return s.sweep(ctx, "expirations", subs, func(ctx context.Context, sub *subscription.Subscription) (outcome, error) {
		return s.transition(ctx, sub, subscription.StatusExpired, "billing period ended", now)
	}), nil
}

// ProcessTrialExpirations ends trials whose window has closed. A trial
// with a payment method converts to Active and is billed by the next
// ProcessDueBilling run; one without moves to TrialExpired.
func (s *Service) ProcessTrialExpirations(ctx context.Context, now time.Time) (*BatchResult, error) {
	now = s.at(now)
	subs, err := s.list(ctx, subscription.Filter{
		Statuses:       []subscription.Status{subscription.StatusTrialActive},
		TrialEndBefore: now,
	})
	if err != nil {
		return nil, fmt.Errorf("list ended trials: %w", err)
	}
	return s.sweep(ctx, "trials", subs, func(ctx context.Context, sub *subscription.Subscription) (outcome, error) {
		if sub.PaymentMethodID != "" || sub.HasRemote() {
			return s.transition(ctx, sub, subscription.StatusActive, "trial converted", now)
		}
		return s.transition(ctx, sub, subscription.StatusTrialExpired, "trial ended", now)
	}), nil
}

// transition requests target and treats a subscription that already got
// there, through a webhook or another sweep, as skipped.
func (s *Service) transition(ctx context.Context, sub *subscription.Subscription, target subscription.Status, reason string, now time.Time) (outcome, error) {
	_, err := s.subs.RequestTransition(ctx, subscription.TransitionRequest{
		SubscriptionID: sub.ID,
		Target:         target,
		Reason:         reason,
		ActorID:        Actor,
		At:             now,
	})
	switch {
	case errors.Is(err, subscription.ErrAlreadyInState):
		return skipped, nil
	case err != nil:
		return failed, err
	}
	return processed, nil
}
