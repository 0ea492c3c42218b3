package automation

import "errors"

var (
	ErrNoPaymentSource       = errors.New("subscription has no payment method or remote customer")
	ErrPaymentPending        = errors.New("payment is pending confirmation")
	ErrJobAlreadyRegistered  = errors.New("job already registered")
	ErrRunnerNotConfigured   = errors.New("runner has no jobs")
	ErrJobRunning            = errors.New("job is already running")
	ErrUnknownJob            = errors.New("unknown job")
	ErrDriftRepairerRequired = errors.New("drift reconciliation needs a drift repairer")
)
