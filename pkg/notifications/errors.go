package notifications

import "errors"

var (
	ErrInvalidConfig   = errors.New("notifications: invalid configuration")
	ErrNoRecipient     = errors.New("notifications: recipient has no email address")
	ErrFailedToDeliver = errors.New("notifications: delivery failed")
	ErrFailedToPersist = errors.New("notifications: failed to store notification")
)
