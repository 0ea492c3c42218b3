package reconcile

import "errors"

var (
	ErrNoCustomerDirectory = errors.New("reconcile: customer directory is not configured")
	ErrGatewayRejected     = errors.New("reconcile: gateway rejected the operation")
)
