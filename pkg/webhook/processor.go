package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/idempotency"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Guard is the idempotency ledger consulted before every event.
type Guard interface {
	CheckIdempotency(ctx context.Context, eventID, eventType string) idempotency.Decision
	MarkAsProcessed(ctx context.Context, eventID string, duration time.Duration, metadata string) error
	MarkAsFailed(ctx context.Context, eventID string, cause error, maxRetries int) error
}

// Lifecycle is the part of subscription.Service the processor drives.
type Lifecycle interface {
	FindByRemoteID(ctx context.Context, remoteSubscriptionID string) (*subscription.Subscription, error)
	RequestTransition(ctx context.Context, req subscription.TransitionRequest) (*subscription.Subscription, error)
	Renew(ctx context.Context, req subscription.RenewRequest) (*subscription.Subscription, error)
}

// Result describes what Process did with an event.
type Result struct {
	Decision       idempotency.Decision
	Processed      bool
	Ignored        bool
	SubscriptionID uuid.UUID
	Status         subscription.Status
	Metadata       string
}

// Processor applies verified gateway events to local subscriptions exactly
// once per event id.
type Processor struct {
	guard  Guard
	subs   Lifecycle
	logger *slog.Logger
	now    func() time.Time
}

type ProcessorOption func(*Processor)

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor creates a Processor. Panics if guard or subs is nil.
func NewProcessor(guard Guard, subs Lifecycle, opts ...ProcessorOption) *Processor {
	if guard == nil {
		panic("webhook: idempotency guard is required")
	}
	if subs == nil {
		panic("webhook: subscription lifecycle is required")
	}
	p := &Processor{
		guard:  guard,
		subs:   subs,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs ev through the idempotency guard and, when it should be
// processed, applies it. A returned error means the attempt was recorded
// as failed and the sender should redeliver.
//
// Duplicate or out-of-order deliveries that find the subscription already
// in the target state count as processed. Transitions the table rejects
// are recorded as permanently failed on the first attempt since a retry
// cannot succeed.
func (p *Processor) Process(ctx context.Context, ev Event) (Result, error) {
	res := Result{Decision: p.guard.CheckIdempotency(ctx, ev.ID, ev.Type)}
	if !res.Decision.ShouldProcess {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "webhook event skipped",
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
			slog.String("reason", res.Decision.Reason),
		)
		return res, nil
	}

	start := p.now()
	sub, meta, err := p.dispatch(ctx, ev)
	elapsed := p.now().Sub(start)
	if sub != nil {
		res.SubscriptionID = sub.ID
		res.Status = sub.Status
	}

	switch {
	case err == nil:
	case errors.Is(err, subscription.ErrAlreadyInState):
		meta = "already in state"
	case errors.Is(err, subscription.ErrInvalidTransition):
		p.markFailed(ctx, ev, err, 1)
		return res, err
	default:
		p.markFailed(ctx, ev, err, 0)
		return res, err
	}

	res.Processed = true
	res.Ignored = meta == metaIgnored
	res.Metadata = meta
	if markErr := p.guard.MarkAsProcessed(ctx, ev.ID, elapsed, meta); markErr != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to record processed webhook event",
			logger.EventID(ev.ID),
			logger.Error(markErr),
		)
	}
	return res, nil
}

const metaIgnored = "ignored"

func (p *Processor) markFailed(ctx context.Context, ev Event, cause error, maxRetries int) {
	if err := p.guard.MarkAsFailed(ctx, ev.ID, cause, maxRetries); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to record failed webhook event",
			logger.EventID(ev.ID),
			logger.Errors(cause, err),
		)
	}
}

func (p *Processor) dispatch(ctx context.Context, ev Event) (*subscription.Subscription, string, error) {
	target, isTransition := targetFor(ev.Type)
	if !isTransition && ev.Type != EventPaymentSucceeded {
		return nil, metaIgnored, nil
	}
	if ev.SubjectID == "" {
		return nil, metaIgnored, nil
	}

	sub, err := p.subs.FindByRemoteID(ctx, ev.SubjectID)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, "", errors.Join(ErrUnknownSubject, err)
	}
	if err != nil {
		return nil, "", err
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = p.now()
	}
	actor := "webhook:" + ev.Source

	if !isTransition {
		return p.renew(ctx, sub, ev, actor, at)
	}

	out, err := p.subs.RequestTransition(ctx, subscription.TransitionRequest{
		SubscriptionID: sub.ID,
		Target:         target,
		Reason:         reasonFor(ev),
		ActorID:        actor,
		At:             at,
		Remote:         true,
	})
	if err != nil {
		return sub, "", err
	}
	return out, fmt.Sprintf("%s -> %s", sub.Status, out.Status), nil
}

// renew advances the billing date after a gateway-side charge. A date the
// local record already passed means the charge was already accounted for.
func (p *Processor) renew(ctx context.Context, sub *subscription.Subscription, ev Event, actor string, at time.Time) (*subscription.Subscription, string, error) {
	next := billing.AdvanceBillingDate(sub.NextBillingDate, sub.BillingCycle, at)
	if raw := ev.Data["period_end"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.After(sub.NextBillingDate) {
			next = t.UTC()
		}
	}
	if !next.After(sub.NextBillingDate) {
		return sub, "", subscription.ErrAlreadyInState
	}

	out, err := p.subs.Renew(ctx, subscription.RenewRequest{
		SubscriptionID:  sub.ID,
		NextBillingDate: next,
		Reason:          "payment succeeded",
		ActorID:         actor,
		At:              at,
	})
	if err != nil {
		return sub, "", err
	}
	return out, "renewed until " + next.Format(time.RFC3339), nil
}

func targetFor(eventType string) (subscription.Status, bool) {
	switch eventType {
	case EventSubscriptionActivated, EventSubscriptionResumed:
		return subscription.StatusActive, true
	case EventSubscriptionPaused:
		return subscription.StatusPaused, true
	case EventSubscriptionCanceled:
		return subscription.StatusCancelled, true
	case EventSubscriptionPastDue, EventPaymentFailed:
		return subscription.StatusPaymentFailed, true
	case EventTrialEnded:
		return subscription.StatusTrialExpired, true
	}
	return "", false
}

func reasonFor(ev Event) string {
	if ev.Source == "" {
		return ev.Type
	}
	return ev.Source + ": " + ev.Type
}
