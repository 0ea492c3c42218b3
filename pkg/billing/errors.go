package billing

import "errors"

var (
	ErrUnknownCycle    = errors.New("unknown billing cycle")
	ErrUnknownCurrency = errors.New("unknown currency code")
)
