package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	// ErrUnknownSubject means the event refers to a remote subscription that
	// is not linked to any local one (yet).
	ErrUnknownSubject = errors.New("webhook subject not found")
)
