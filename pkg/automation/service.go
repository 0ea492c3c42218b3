package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Lifecycle is the part of subscription.Service the sweeps drive.
type Lifecycle interface {
	RequestTransition(ctx context.Context, req subscription.TransitionRequest) (*subscription.Subscription, error)
	Renew(ctx context.Context, req subscription.RenewRequest) (*subscription.Subscription, error)
}

// Gateway is the remote capability the sweeps need.
type Gateway interface {
	ProcessPayment(ctx context.Context, p gateway.Payment) (*gateway.PaymentResult, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error)
}

// DriftRepairer validates and repairs subscriptions flagged SyncPending.
// reconcile.Engine implements it.
type DriftRepairer interface {
	ValidateSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*reconcile.ValidationResult, error)
	SynchronizeSubscriptionStatus(ctx context.Context, id uuid.UUID, status subscription.Status) error
	RepairSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	MarkSynchronized(ctx context.Context, id uuid.UUID) error
}

var _ DriftRepairer = (*reconcile.Engine)(nil)

// Actor is recorded as the author of every change a sweep makes.
const Actor = "system:automation"

// Service scans for subscriptions that need billing, renewal, expiration
// or drift repair and drives them through the lifecycle Service. Each
// subscription is handled on its own: one failure never aborts a sweep.
type Service struct {
	store       subscription.Store
	subs        Lifecycle
	gw          Gateway
	drift       DriftRepairer
	notifier    subscription.Notifier
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	lookahead   time.Duration
	batchSize   int
}

type Option func(*Service)

func WithDriftRepairer(d DriftRepairer) Option {
	return func(s *Service) { s.drift = d }
}

// WithNotifier receives payment_succeeded notifications. Status changes
// are announced by the lifecycle Service itself.
func WithNotifier(n subscription.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConfig applies the tuning part of cfg.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		WithConcurrency(cfg.Concurrency)(s)
		WithRenewalLookahead(cfg.RenewalLookahead)(s)
		WithBatchSize(cfg.BatchSize)(s)
	}
}

// WithConcurrency bounds how many subscriptions a sweep handles at once.
// Default 8.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRenewalLookahead sets how far ahead ProcessAutomatedRenewals looks.
// Default 7 days.
func WithRenewalLookahead(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lookahead = d
		}
	}
}

// WithBatchSize sets how many candidates a sweep loads per query. Every
// page is read, so rows that stay due never hide the ones behind them.
// Zero loads all candidates in one query.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.batchSize = n
		}
	}
}

// NewService creates a Service. Panics on nil dependencies.
func NewService(store subscription.Store, subs Lifecycle, gw Gateway, opts ...Option) *Service {
	if store == nil || subs == nil || gw == nil {
		panic("automation: store, lifecycle and gateway are required")
	}
	s := &Service{
		store:       store,
		subs:        subs,
		gw:          gw,
		notifier:    noopNotifier{},
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: 8,
		lookahead:   7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// list loads every match of f, paging by (next billing date, id).
func (s *Service) list(ctx context.Context, f subscription.Filter) ([]*subscription.Subscription, error) {
	f.Limit = s.batchSize
	var out []*subscription.Subscription
	for {
		page, err := s.store.List(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if s.batchSize <= 0 || len(page) < s.batchSize {
			return out, nil
		}
		f.After = subscription.CursorOf(page[len(page)-1])
	}
}

func boolPtr(v bool) *bool { return &v }
