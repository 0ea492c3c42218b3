package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// GetDueForBilling returns auto-renewing subscriptions in Active or
// PaymentFailed whose next billing date is not after now.
func (s *Service) GetDueForBilling(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, subscription.Filter{
		Statuses:          []subscription.Status{subscription.StatusActive, subscription.StatusPaymentFailed},
		AutoRenew:         boolPtr(true),
		NextBillingBefore: s.at(now),
	})
}

// ProcessDueBilling bills every due subscription. Subscriptions billed by
// the gateway itself are renewed once the gateway reports a new period;
// the others are charged here. A successful charge renews the
// subscription; a declined one moves it to PaymentFailed.
func (s *Service) ProcessDueBilling(ctx context.Context, now time.Time) (*BatchResult, error) {
	now = s.at(now)
	due, err := s.GetDueForBilling(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return s.sweep(ctx, "billing", due, func(ctx context.Context, sub *subscription.Subscription) (outcome, error) {
		if sub.HasRemote() {
			return s.mirrorRemoteRenewal(ctx, sub, now)
		}
		return s.chargeAndRenew(ctx, sub, now)
	}), nil
}

func (s *Service) chargeAndRenew(ctx context.Context, sub *subscription.Subscription, now time.Time) (outcome, error) {
	next, err := s.ResolveNextBillingDate(ctx, sub, now)
	if err != nil {
		return failed, err
	}

	paymentID := ""
	if sub.Price.IsPositive() {
		res, err := s.charge(ctx, sub)
		switch {
		case errors.Is(err, ErrPaymentPending):
			return skipped, nil
		case errors.Is(err, subscription.ErrPaymentFailed), errors.Is(err, ErrNoPaymentSource):
			if terr := s.markPaymentFailed(ctx, sub, err, now); terr != nil {
				return failed, errors.Join(err, terr)
			}
			return failed, err
		case err != nil:
			return failed, err
		}
		paymentID = res.ID
	}

	renewed, err := s.subs.Renew(ctx, subscription.RenewRequest{
		SubscriptionID:  sub.ID,
		NextBillingDate: next,
		Reason:          "payment succeeded",
		ActorID:         Actor,
		At:              now,
	})
	if err != nil {
		if paymentID != "" {
			s.logger.LogAttrs(ctx, slog.LevelError, "payment captured but renewal not saved",
				logger.SubscriptionID(sub.ID),
				slog.String("payment_id", paymentID),
				logger.Error(err),
			)
		}
		return failed, err
	}
	if paymentID != "" {
		s.notifyPayment(ctx, renewed, paymentID)
	}
	return processed, nil
}

// charge collects one period. The idempotency key is stable per billing
// date so a retried sweep cannot double-charge.
func (s *Service) charge(ctx context.Context, sub *subscription.Subscription) (*gateway.PaymentResult, error) {
	if sub.PaymentMethodID == "" && sub.RemoteCustomerID == "" {
		return nil, ErrNoPaymentSource
	}
	res, err := s.gw.ProcessPayment(ctx, gateway.Payment{
		PaymentMethodID: sub.PaymentMethodID,
		CustomerID:      sub.RemoteCustomerID,
		Amount:          sub.Price,
		Currency:        sub.Currency,
		Description:     fmt.Sprintf("%s subscription (%s)", sub.PlanID, sub.BillingCycle),
		IdempotencyKey:  fmt.Sprintf("renewal:%s:%s", sub.ID, sub.NextBillingDate.UTC().Format(time.DateOnly)),
	})
	if err != nil {
		return nil, fmt.Errorf("process payment: %w", err)
	}
	switch res.Status {
	case gateway.PaymentSucceeded:
		return res, nil
	case gateway.PaymentPending, gateway.PaymentRequiresAction:
		return nil, ErrPaymentPending
	}
	return nil, errors.Join(subscription.ErrPaymentFailed, errors.New(res.ErrorMessage))
}

func (s *Service) markPaymentFailed(ctx context.Context, sub *subscription.Subscription, cause error, now time.Time) error {
	_, err := s.subs.RequestTransition(ctx, subscription.TransitionRequest{
		SubscriptionID: sub.ID,
		Target:         subscription.StatusPaymentFailed,
		Reason:         cause.Error(),
		ActorID:        Actor,
		At:             now,
	})
	if errors.Is(err, subscription.ErrAlreadyInState) {
		return nil
	}
	return err
}

// mirrorRemoteRenewal renews sub when the gateway has moved its period
// forward, and skips it otherwise: the gateway collects the payment and
// reports failures through webhooks.
func (s *Service) mirrorRemoteRenewal(ctx context.Context, sub *subscription.Subscription, now time.Time) (outcome, error) {
	remote, err := s.gw.GetSubscription(ctx, sub.RemoteSubscriptionID)
	if err != nil {
		return failed, fmt.Errorf("get remote subscription: %w", err)
	}
	if !remote.CurrentPeriodEnd.After(sub.NextBillingDate) {
		return skipped, nil
	}
	_, err = s.subs.Renew(ctx, subscription.RenewRequest{
		SubscriptionID:  sub.ID,
		NextBillingDate: remote.CurrentPeriodEnd,
		Reason:          "renewed by gateway",
		ActorID:         Actor,
		At:              now,
	})
	if err != nil {
		return failed, err
	}
	return processed, nil
}

// ResolveNextBillingDate returns the billing date that follows sub's
// current one. A gateway-linked subscription uses the remote period end
// when the gateway has moved it forward; otherwise the date advances by
// whole cycles until it is after now, and by at least one cycle.
func (s *Service) ResolveNextBillingDate(ctx context.Context, sub *subscription.Subscription, now time.Time) (time.Time, error) {
	if sub.HasRemote() {
		remote, err := s.gw.GetSubscription(ctx, sub.RemoteSubscriptionID)
		switch {
		case err == nil && remote.CurrentPeriodEnd.After(sub.NextBillingDate):
			return remote.CurrentPeriodEnd, nil
		case err != nil && !errors.Is(err, gateway.ErrNotFound):
			s.logger.LogAttrs(ctx, slog.LevelWarn, "falling back to cycle arithmetic",
				logger.SubscriptionID(sub.ID),
				logger.RemoteID(sub.RemoteSubscriptionID),
				logger.Error(err),
			)
		}
	}
	next := billing.AdvanceBillingDate(sub.NextBillingDate, sub.BillingCycle, s.at(now))
	if !next.After(sub.NextBillingDate) {
		next = billing.NextBillingDate(sub.NextBillingDate, sub.BillingCycle)
	}
	return next, nil
}

// ProcessAutomatedRenewals renews auto-renewing active subscriptions
// whose next billing date falls within the lookahead window and that need
// no charge from this service: gateway-linked subscriptions whose remote
// period has already moved forward, and free ones. Priced subscriptions
// billed locally are left to ProcessDueBilling.
func (s *Service) ProcessAutomatedRenewals(ctx context.Context, now time.Time) (*BatchResult, error) {
	now = s.at(now)
	subs, err := s.list(ctx, subscription.Filter{
		Statuses:          []subscription.Status{subscription.StatusActive},
		AutoRenew:         boolPtr(true),
		NextBillingAfter:  now,
		NextBillingBefore: now.Add(s.lookahead),
	})
	if err != nil {
		return nil, fmt.Errorf("list renewal candidates: %w", err)
	}
	return s.sweep(ctx, "renewals", subs, func(ctx context.Context, sub *subscription.Subscription) (outcome, error) {
		switch {
		case sub.HasRemote():
			return s.mirrorRemoteRenewal(ctx, sub, now)
		case sub.Price.IsZero():
			_, err := s.subs.Renew(ctx, subscription.RenewRequest{
				SubscriptionID:  sub.ID,
				NextBillingDate: billing.NextBillingDate(sub.NextBillingDate, sub.BillingCycle),
				Reason:          "automatic renewal",
				ActorID:         Actor,
				At:              now,
			})
			if err != nil {
				return failed, err
			}
			return processed, nil
		}
		return skipped, nil
	}), nil
}
