package subscription

import "strings"

// Status is the local lifecycle status of a subscription.
type Status string

const (
	StatusPending       Status = "pending"
	StatusTrialActive   Status = "trial_active"
	StatusActive        Status = "active"
	StatusPaused        Status = "paused"
	StatusSuspended     Status = "suspended"
	StatusPaymentFailed Status = "payment_failed"
	StatusCancelled     Status = "cancelled"
	StatusExpired       Status = "expired"
	StatusTrialExpired  Status = "trial_expired"
)

// Statuses is the closed set of valid statuses.
var Statuses = []Status{
	StatusPending,
	StatusTrialActive,
	StatusActive,
	StatusPaused,
	StatusSuspended,
	StatusPaymentFailed,
	StatusCancelled,
	StatusExpired,
	StatusTrialExpired,
}

// Name implements statemachine.State.
func (s Status) Name() string { return string(s) }

func (s Status) String() string { return string(s) }

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStatus converts s into a Status. "canceled" is accepted as an alias.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "canceled" {
		v = string(StatusCancelled)
	}
	st := Status(v)
	if !st.Valid() {
		return "", ErrUnsupportedStatus
	}
	return st, nil
}

// Entitled reports whether a subscriber in this status has access to paid features.
func (s Status) Entitled() bool {
	switch s {
	case StatusActive, StatusTrialActive, StatusPaymentFailed:
		return true
	}
	return false
}
