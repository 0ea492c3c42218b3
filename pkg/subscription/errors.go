package subscription

import "errors"

var (
	ErrNotFound               = errors.New("subscription not found")
	ErrInvalidTransition      = errors.New("invalid subscription status transition")
	ErrAlreadyInState         = errors.New("subscription already in requested status")
	ErrRemoteSyncFailure      = errors.New("payment gateway synchronization failed")
	ErrPersistenceFailure     = errors.New("subscription persistence failed")
	ErrUnsupportedStatus      = errors.New("unsupported subscription status")
	ErrConcurrentModification = errors.New("subscription was modified concurrently")
	ErrInvalidInput           = errors.New("invalid subscription input")

	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrInvalidPlan          = errors.New("invalid subscription plan")
	ErrPriceNotConfigured   = errors.New("plan has no price for billing cycle")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrPaymentMethodInvalid = errors.New("payment method is not valid")
	ErrNotReactivatable     = errors.New("subscription can only be reactivated from cancelled or expired")
)
