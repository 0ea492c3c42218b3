package automation

import (
	"context"

	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notifications.Notification) {}

func (s *Service) notifyPayment(ctx context.Context, sub *subscription.Subscription, paymentID string) {
	n := notifications.New(notifications.KindPaymentSucceeded, sub.UserID, sub.ID.String()).
		With("plan_id", sub.PlanID).
		With("amount", sub.Price.String()).
		With("currency", sub.Currency).
		With("payment_id", paymentID)
	s.notifier.Notify(ctx, n)
}
