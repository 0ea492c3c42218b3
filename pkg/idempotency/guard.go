package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Guard decides whether an externally delivered event should be processed
// and tracks the outcome of each attempt.
//
// Lookup failures fail open: an unavailable ledger must not block
// legitimate traffic, so the event is processed and the caller's own
// idempotency (AlreadyInState and friends) absorbs the rare duplicate.
type Guard struct {
	store      Store
	logger     *slog.Logger
	maxRetries int
	lease      time.Duration
	now        func() time.Time
}

type Option func(*Guard)

// WithMaxRetries sets the default retry ceiling. Default 3.
func WithMaxRetries(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

// WithLease sets how long a delivery owns an event before another delivery
// may take it over. Default 5 minutes.
func WithLease(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lease = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard creates a Guard. Panics if store is nil.
func NewGuard(store Store, opts ...Option) *Guard {
	if store == nil {
		panic("idempotency: store is required")
	}
	g := &Guard{
		store:      store,
		logger:     slog.Default(),
		maxRetries: 3,
		lease:      5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxRetries returns the default retry ceiling.
func (g *Guard) MaxRetries() int { return g.maxRetries }

// CheckIdempotency records the first sighting of eventID and decides
// whether this delivery should process it.
func (g *Guard) CheckIdempotency(ctx context.Context, eventID, eventType string) Decision {
	if eventID == "" {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "event without id, skipping idempotency tracking",
			logger.EventType(eventType))
		return Decision{ShouldProcess: true, IsNewEvent: true, Reason: ReasonUntracked}
	}

	now := g.now()
	lease := now.Add(g.lease)
	row, created, err := g.store.InsertOrGet(ctx, &ProcessedEvent{
		EventID:    eventID,
		EventType:  eventType,
		ReceivedAt: now,
		MaxRetries: g.maxRetries,
		LeaseUntil: &lease,
		UpdatedAt:  now,
	})
	if err != nil {
		return g.failOpen(ctx, eventID, eventType, err)
	}
	if created {
		return Decision{ShouldProcess: true, IsNewEvent: true, Reason: ReasonNewEvent}
	}

	switch {
	case row.IsSuccess:
		return Decision{Reason: ReasonAlreadyProcessed}
	case row.Exhausted():
		return Decision{Reason: ReasonPermanentlyFailed}
	case row.Leased(now):
		return Decision{Reason: ReasonInProgress}
	}

	claimed, err := g.store.ClaimRetry(ctx, eventID, row.RetryCount, lease, now)
	if err != nil {
		return g.failOpen(ctx, eventID, eventType, err)
	}
	if !claimed {
		return Decision{Reason: ReasonInProgress}
	}
	g.logger.LogAttrs(ctx, slog.LevelInfo, "retrying event",
		logger.EventID(eventID),
		logger.EventType(eventType),
		logger.RetryCount(row.RetryCount),
	)
	return Decision{ShouldProcess: true, Reason: ReasonRetry}
}

func (g *Guard) failOpen(ctx context.Context, eventID, eventType string, err error) Decision {
	g.logger.LogAttrs(ctx, slog.LevelError, "idempotency ledger unavailable, processing event anyway",
		logger.EventID(eventID),
		logger.EventType(eventType),
		logger.Error(err),
	)
	return Decision{ShouldProcess: true, Reason: ReasonFailOpen}
}

// MarkAsProcessed records a successful attempt. An unknown event id is
// logged and ignored.
func (g *Guard) MarkAsProcessed(ctx context.Context, eventID string, duration time.Duration, metadata string) error {
	if eventID == "" {
		return nil
	}
	err := g.store.MarkProcessed(ctx, eventID, duration, metadata, g.now())
	if errors.Is(err, ErrNotFound) {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "mark processed: event not tracked", logger.EventID(eventID))
		return nil
	}
	return err
}

// MarkAsFailed records a failed attempt. maxRetries <= 0 uses the guard
// default. Once the ceiling is reached the event is permanently failed.
// An unknown event id is logged and ignored.
func (g *Guard) MarkAsFailed(ctx context.Context, eventID string, cause error, maxRetries int) error {
	if eventID == "" {
		return nil
	}
	if maxRetries <= 0 {
		maxRetries = g.maxRetries
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	row, err := g.store.MarkFailed(ctx, eventID, msg, maxRetries, g.now())
	switch {
	case errors.Is(err, ErrNotFound):
		g.logger.LogAttrs(ctx, slog.LevelWarn, "mark failed: event not tracked", logger.EventID(eventID))
		return nil
	case errors.Is(err, ErrAlreadySucceeded):
		g.logger.LogAttrs(ctx, slog.LevelWarn, "mark failed ignored for succeeded event", logger.EventID(eventID))
		return nil
	case err != nil:
		return err
	}

	level := slog.LevelWarn
	if row.PermanentlyFailed {
		level = slog.LevelError
	}
	g.logger.LogAttrs(ctx, level, "event processing failed",
		logger.EventID(eventID),
		logger.EventType(row.EventType),
		logger.RetryCount(row.RetryCount),
		slog.Int("max_retries", row.MaxRetries),
		slog.Bool("permanently_failed", row.PermanentlyFailed),
		logger.Error(cause),
	)
	return nil
}

// Failed lists events that failed at least once and never succeeded.
func (g *Guard) Failed(ctx context.Context, limit int) ([]*ProcessedEvent, error) {
	return g.store.ListFailed(ctx, limit)
}
