package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/subsync/pkg/statemachine"
)

// allowedTransitions is the single source of truth for legal status moves.
// Cancelled has no outgoing edges; leaving it takes Service.Reactivate.
var allowedTransitions = map[Status][]Status{
	StatusPending:       {StatusActive, StatusTrialActive, StatusCancelled},
	StatusTrialActive:   {StatusActive, StatusTrialExpired, StatusCancelled},
	StatusTrialExpired:  {StatusActive, StatusCancelled},
	StatusActive:        {StatusPaused, StatusSuspended, StatusCancelled, StatusExpired, StatusPaymentFailed},
	StatusPaused:        {StatusActive, StatusCancelled, StatusExpired},
	StatusSuspended:     {StatusActive, StatusCancelled},
	StatusPaymentFailed: {StatusActive, StatusCancelled, StatusSuspended},
	StatusExpired:       {StatusActive},
	StatusCancelled:     {},
}

// change carries the subscription copy being mutated through table actions.
type change struct {
	sub          *Subscription
	reason       string
	at           time.Time
	reactivation bool
}

func newTransitionTable() *statemachine.Table {
	opts := make([]statemachine.Option, 0, len(allowedTransitions)+1)
	for from, targets := range allowedTransitions {
		if from == StatusExpired {
			continue
		}
		opts = append(opts, statemachine.WithTransitionsFrom(from, statuses(targets),
			statemachine.WithAction(applyStatusEffects),
		))
	}
	opts = append(opts, statemachine.WithTransition(StatusExpired, StatusActive,
		statemachine.WithGuard(reactivationOnly),
		statemachine.WithAction(applyStatusEffects),
	))
	return statemachine.MustNew(opts...)
}

func statuses(in []Status) []statemachine.State {
	out := make([]statemachine.State, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// CanTransition reports whether from→to is a regular table transition.
// Expired→Active is listed but only usable through reactivation or renewal.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func reactivationOnly(_ context.Context, _, _ statemachine.State, data any) bool {
	c, ok := data.(*change)
	return ok && c.reactivation
}

func applyStatusEffects(_ context.Context, _, to statemachine.State, data any) error {
	c, ok := data.(*change)
	if !ok || c.sub == nil {
		return errors.New("transition data must be a subscription change")
	}
	target, ok := to.(Status)
	if !ok {
		return ErrUnsupportedStatus
	}
	applyEffects(c, target)
	return nil
}

// applyEffects sets the status-specific fields of entering target and clears
// the ones it makes meaningless.
func applyEffects(c *change, target Status) {
	s := c.sub
	at := c.at
	switch target {
	case StatusActive:
		if s.ActivatedDate == nil {
			s.ActivatedDate = timePtr(at)
		} else {
			s.ResumedDate = timePtr(at)
		}
		s.PauseReason = ""
		s.SuspensionReason = ""
		s.CancellationReason = ""
	case StatusPaused:
		s.PausedDate = timePtr(at)
		s.PauseReason = c.reason
		s.SuspensionReason = ""
	case StatusSuspended:
		s.SuspendedDate = timePtr(at)
		s.SuspensionReason = c.reason
		s.PauseReason = ""
	case StatusPaymentFailed:
		s.PaymentFailedDate = timePtr(at)
	case StatusCancelled:
		s.CancelledDate = timePtr(at)
		s.CancellationReason = c.reason
		s.PauseReason = ""
		s.SuspensionReason = ""
		s.AutoRenew = false
	case StatusExpired:
		s.ExpiredDate = timePtr(at)
	case StatusTrialExpired:
		s.TrialExpiredDate = timePtr(at)
	}
	s.Status = target
	s.UpdatedAt = at
}

func tableError(err error) error {
	if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
		return errors.Join(ErrInvalidTransition, err)
	}
	return err
}
