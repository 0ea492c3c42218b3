package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Customer is the identity used to create a remote customer.
type Customer struct {
	Email string
	Name  string
}

// CustomerDirectory resolves a user id to the identity the gateway needs.
// User management lives outside this module.
type CustomerDirectory interface {
	LookupCustomer(ctx context.Context, userID string) (Customer, error)
}

// CustomerDirectoryFunc adapts a function to CustomerDirectory.
type CustomerDirectoryFunc func(ctx context.Context, userID string) (Customer, error)

func (f CustomerDirectoryFunc) LookupCustomer(ctx context.Context, userID string) (Customer, error) {
	return f(ctx, userID)
}

// Engine keeps local plans and subscriptions consistent with the payment
// gateway. It implements subscription.Synchronizer; the Synchronizer
// methods never persist and never lock, since the Service already holds
// the subscription lock when calling them. Repair methods lock and persist
// on their own.
type Engine struct {
	gw        gateway.Gateway
	subs      subscription.Store
	plans     subscription.PlanStore
	customers CustomerDirectory
	locker    subscription.Locker
	auditor   subscription.Auditor
	logger    *slog.Logger
	now       func() time.Time
}

var _ subscription.Synchronizer = (*Engine)(nil)

type Option func(*Engine)

func WithCustomerDirectory(d CustomerDirectory) Option {
	return func(e *Engine) { e.customers = d }
}

// WithLocker shares the lifecycle Service's Locker so repairs never race a
// transition. Defaults to a private LocalLocker.
func WithLocker(l subscription.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

func WithAuditor(a subscription.Auditor) Option {
	return func(e *Engine) {
		if a != nil {
			e.auditor = a
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine. Panics on nil dependencies.
func NewEngine(gw gateway.Gateway, subs subscription.Store, plans subscription.PlanStore, opts ...Option) *Engine {
	if gw == nil {
		panic("reconcile: gateway is required")
	}
	if subs == nil || plans == nil {
		panic("reconcile: subscription and plan stores are required")
	}
	e := &Engine{
		gw:      gw,
		subs:    subs,
		plans:   plans,
		locker:  subscription.NewLocalLocker(),
		auditor: noopAuditor{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ignorable reports remote errors that mean "already gone" or "cannot be
// done on this gateway" during teardown.
func ignorable(err error) bool {
	return errors.Is(err, gateway.ErrNotFound) || errors.Is(err, gateway.ErrNotSupported)
}

func rejected(op string) error {
	return fmt.Errorf("%w: %s", ErrGatewayRejected, op)
}
