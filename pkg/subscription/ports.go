package subscription

import (
	"context"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/notifications"
)

// Synchronizer mirrors local lifecycle changes to the payment gateway.
// reconcile.Engine is the production implementation.
type Synchronizer interface {
	// PushStatus applies status to the remote subscription linked to sub.
	PushStatus(ctx context.Context, sub *Subscription, status Status) error
	// CreateRemoteSubscription ensures the remote customer exists, creates a
	// remote subscription for the plan price of sub's cycle and stores the
	// remote ids on sub. sub is not persisted. A remote subscription sub is
	// still linked to is reused while it bills and cancelled otherwise, so
	// a customer never ends up with two.
	CreateRemoteSubscription(ctx context.Context, sub *Subscription, plan *Plan) error
	// UpdateRemotePrice moves the remote subscription to priceID.
	UpdateRemotePrice(ctx context.Context, sub *Subscription, priceID string) error
}

// Charger moves money for prorated plan changes.
type Charger interface {
	ProcessPayment(ctx context.Context, p gateway.Payment) (*gateway.PaymentResult, error)
}

// Notifier receives lifecycle notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

// Auditor receives audit events. Implementations must not block.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notifications.Notification) {}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, audit.Event) {}
