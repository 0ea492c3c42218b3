package subscription

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

// Subscription is the local mirror of a recurring paid subscription.
// It is mutated only through Service and never hard-deleted.
type Subscription struct {
	ID           uuid.UUID
	UserID       string
	PlanID       string
	BillingCycle billing.Cycle
	Status       Status
	Price        decimal.Decimal
	Currency     string

	StartDate       time.Time
	TrialStart      *time.Time
	TrialEnd        *time.Time
	NextBillingDate time.Time

	// Status-specific timestamps. Each is set when the subscription enters
	// the matching status and kept afterwards as history.
	ActivatedDate     *time.Time
	PausedDate        *time.Time
	ResumedDate       *time.Time
	SuspendedDate     *time.Time
	PaymentFailedDate *time.Time
	CancelledDate     *time.Time
	ExpiredDate       *time.Time
	TrialExpiredDate  *time.Time

	PauseReason        string
	SuspensionReason   string
	CancellationReason string

	RemoteCustomerID     string
	RemoteSubscriptionID string
	RemotePriceID        string
	PaymentMethodID      string
	AutoRenew            bool

	// SyncPending marks local state the gateway has not caught up with.
	SyncPending   bool
	LastSyncError string
	LastSyncedAt  *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks structural invariants.
func (s *Subscription) Validate() error {
	var errs []error
	if s.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if s.PlanID == "" {
		errs = append(errs, errors.New("plan id is required"))
	}
	if !s.BillingCycle.Valid() {
		errs = append(errs, billing.ErrUnknownCycle)
	}
	if !s.Status.Valid() {
		errs = append(errs, ErrUnsupportedStatus)
	}
	if s.Price.IsNegative() {
		errs = append(errs, errors.New("price must not be negative"))
	}
	if err := billing.ValidateCurrency(s.Currency); err != nil {
		errs = append(errs, err)
	}
	if s.NextBillingDate.Before(s.StartDate) {
		errs = append(errs, errors.New("next billing date must not precede start date"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidInput}, errs...)...)
	}
	return nil
}

// HasRemote reports whether the subscription is linked to a gateway subscription.
func (s *Subscription) HasRemote() bool {
	return s.RemoteSubscriptionID != ""
}

// InTrial reports whether at is inside the trial window.
func (s *Subscription) InTrial(at time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return billing.Window{Start: *s.TrialStart, End: *s.TrialEnd}.Contains(at)
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	for _, p := range []**time.Time{
		&c.TrialStart, &c.TrialEnd, &c.ActivatedDate, &c.PausedDate, &c.ResumedDate,
		&c.SuspendedDate, &c.PaymentFailedDate, &c.CancelledDate, &c.ExpiredDate,
		&c.TrialExpiredDate, &c.LastSyncedAt,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return &c
}

// StatusHistory is an append-only record of one status change.
type StatusHistory struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	FromStatus     *Status // nil on creation
	ToStatus       Status
	Reason         string
	ChangedBy      *string
	ChangedAt      time.Time
}

func newHistory(subID uuid.UUID, from *Status, to Status, reason, actor string, at time.Time) *StatusHistory {
	h := &StatusHistory{
		ID:             uuid.New(),
		SubscriptionID: subID,
		FromStatus:     from,
		ToStatus:       to,
		Reason:         reason,
		ChangedAt:      at,
	}
	if actor != "" {
		h.ChangedBy = &actor
	}
	return h
}

func timePtr(t time.Time) *time.Time { return &t }
