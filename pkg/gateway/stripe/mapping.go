package stripe

import (
	"errors"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/subsync/pkg/gateway"
)

// mapError translates Stripe API errors into gateway sentinels, keeping
// the original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == stripeapi.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound:
		return errors.Join(gateway.ErrNotFound, err)
	case se.HTTPStatusCode == http.StatusBadRequest || se.Type == stripeapi.ErrorTypeInvalidRequest:
		return errors.Join(gateway.ErrInvalidInput, err)
	}
	return err
}

// subscriptionStatus normalizes Stripe's status. A subscription with paused
// collection is reported as paused.
func subscriptionStatus(s *stripeapi.Subscription) string {
	if s.PauseCollection != nil && s.PauseCollection.Behavior != "" {
		return "paused"
	}
	switch s.Status {
	case stripeapi.SubscriptionStatusCanceled, stripeapi.SubscriptionStatusIncompleteExpired:
		return "canceled"
	case stripeapi.SubscriptionStatusPaused:
		return "paused"
	case stripeapi.SubscriptionStatusPastDue, stripeapi.SubscriptionStatusUnpaid:
		return "past_due"
	case stripeapi.SubscriptionStatusTrialing:
		return "trialing"
	case stripeapi.SubscriptionStatusActive:
		return "active"
	}
	return string(s.Status)
}

func paymentStatus(s stripeapi.PaymentIntentStatus) gateway.PaymentStatus {
	switch s {
	case stripeapi.PaymentIntentStatusSucceeded:
		return gateway.PaymentSucceeded
	case stripeapi.PaymentIntentStatusRequiresAction, stripeapi.PaymentIntentStatusRequiresConfirmation:
		return gateway.PaymentRequiresAction
	case stripeapi.PaymentIntentStatusProcessing:
		return gateway.PaymentPending
	}
	return gateway.PaymentFailed
}
