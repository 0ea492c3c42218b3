package notifications

import (
	"fmt"
	"time"
)

// Kind identifies the lifecycle event a notification reports.
type Kind string

const (
	KindCreated          Kind = "subscription.created"
	KindActivated        Kind = "subscription.activated"
	KindPaused           Kind = "subscription.paused"
	KindResumed          Kind = "subscription.resumed"
	KindSuspended        Kind = "subscription.suspended"
	KindCancelled        Kind = "subscription.cancelled"
	KindExpired          Kind = "subscription.expired"
	KindTrialExpired     Kind = "subscription.trial_expired"
	KindReactivated      Kind = "subscription.reactivated"
	KindPlanChanged      Kind = "subscription.plan_changed"
	KindRenewed          Kind = "subscription.renewed"
	KindPaymentFailed    Kind = "payment.failed"
	KindPaymentSucceeded Kind = "payment.succeeded"
)

// Notification is a message for the owner of a subscription.
type Notification struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	SubscriptionID string            `json:"subscription_id"`
	Kind           Kind              `json:"kind"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

var titles = map[Kind]string{
	KindCreated:          "Your subscription has started",
	KindActivated:        "Your subscription is active",
	KindPaused:           "Your subscription is paused",
	KindResumed:          "Your subscription has resumed",
	KindSuspended:        "Your subscription is suspended",
	KindCancelled:        "Your subscription was cancelled",
	KindExpired:          "Your subscription has expired",
	KindTrialExpired:     "Your trial has ended",
	KindReactivated:      "Welcome back",
	KindPlanChanged:      "Your plan was changed",
	KindRenewed:          "Your subscription was renewed",
	KindPaymentFailed:    "We could not process your payment",
	KindPaymentSucceeded: "Payment received",
}

// New builds a notification with a default title for kind.
func New(kind Kind, userID, subscriptionID string) Notification {
	title, ok := titles[kind]
	if !ok {
		title = fmt.Sprintf("Subscription update: %s", kind)
	}
	return Notification{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Kind:           kind,
		Title:          title,
	}
}

// With returns a copy carrying an extra data entry.
func (n Notification) With(key, value string) Notification {
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[key] = value
	n.Data = data
	return n
}
