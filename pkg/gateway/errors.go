package gateway

import "errors"

var (
	ErrNotFound     = errors.New("gateway: resource not found")
	ErrNotSupported = errors.New("gateway: operation not supported")
	ErrCircuitOpen  = errors.New("gateway: circuit breaker is open")
	ErrTimeout      = errors.New("gateway: call timed out")
	ErrInvalidInput = errors.New("gateway: invalid input")
)
