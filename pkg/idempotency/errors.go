package idempotency

import "errors"

var (
	ErrNotFound         = errors.New("idempotency: event not found")
	ErrAlreadySucceeded = errors.New("idempotency: event already processed successfully")
)
