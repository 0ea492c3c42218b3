package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions and their status history.
// Get and GetByRemoteID return ErrNotFound when nothing matches.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetByRemoteID(ctx context.Context, remoteSubscriptionID string) (*Subscription, error)
	List(ctx context.Context, f Filter) ([]*Subscription, error)
	History(ctx context.Context, subscriptionID uuid.UUID) ([]*StatusHistory, error)

	// Begin opens a unit of work spanning subscription writes and history inserts.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Nothing written through it is visible until Commit.
type Tx interface {
	Create(ctx context.Context, s *Subscription) error
	// Update stores s if its Version matches the stored one and bumps
	// s.Version on success. A mismatch yields ErrConcurrentModification.
	Update(ctx context.Context, s *Subscription) error
	AppendHistory(ctx context.Context, h *StatusHistory) error
	Commit(ctx context.Context) error
	// Rollback discards staged writes. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// Filter selects subscriptions for List. Zero-valued fields are ignored;
// time bounds are inclusive.
type Filter struct {
	Statuses          []Status
	UserID            string
	AutoRenew         *bool
	HasRemote         *bool
	SyncPending       *bool
	NextBillingBefore time.Time
	NextBillingAfter  time.Time
	TrialEndBefore    time.Time
	// After skips everything up to and including this position in
	// (NextBillingDate, ID) order, the order List returns.
	After *Cursor
	Limit int
}

// Cursor is a position in List order.
type Cursor struct {
	NextBillingDate time.Time
	ID              uuid.UUID
}

// CursorOf returns the position of s in List order.
func CursorOf(s *Subscription) *Cursor {
	return &Cursor{NextBillingDate: s.NextBillingDate, ID: s.ID}
}

// covers reports whether s sorts at or before c.
func (c Cursor) covers(s *Subscription) bool {
	if !s.NextBillingDate.Equal(c.NextBillingDate) {
		return s.NextBillingDate.Before(c.NextBillingDate)
	}
	return s.ID.String() <= c.ID.String()
}

// Match reports whether s satisfies the filter. Store implementations
// without a query language can use it directly.
func (f Filter) Match(s *Subscription) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.AutoRenew != nil && s.AutoRenew != *f.AutoRenew {
		return false
	}
	if f.HasRemote != nil && s.HasRemote() != *f.HasRemote {
		return false
	}
	if f.SyncPending != nil && s.SyncPending != *f.SyncPending {
		return false
	}
	if !f.NextBillingBefore.IsZero() && s.NextBillingDate.After(f.NextBillingBefore) {
		return false
	}
	if !f.NextBillingAfter.IsZero() && s.NextBillingDate.Before(f.NextBillingAfter) {
		return false
	}
	if !f.TrialEndBefore.IsZero() && (s.TrialEnd == nil || s.TrialEnd.After(f.TrialEndBefore)) {
		return false
	}
	if f.After != nil && f.After.covers(s) {
		return false
	}
	return true
}

// PlanStore persists the plan catalog.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)
	// SavePlan inserts or replaces a plan.
	SavePlan(ctx context.Context, p *Plan) error
}

// RunInTx runs fn in a unit of work, committing when fn succeeds and
// rolling back otherwise. Store errors are wrapped in ErrPersistenceFailure;
// ErrConcurrentModification and ErrNotFound pass through unwrapped so
// callers can tell them apart.
func RunInTx(ctx context.Context, store Store, fn func(tx Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return persistenceError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return persistenceError(err)
	}
	return nil
}

func persistenceError(err error) error {
	switch {
	case errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPersistenceFailure),
		errors.Is(err, ErrInvalidInput):
		return err
	}
	return errors.Join(ErrPersistenceFailure, err)
}
