package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

var _ Gateway = (*Guarded)(nil)

// Guarded wraps a Gateway with a per-call timeout and a circuit breaker.
// It never retries: a timed-out call may still have taken effect remotely.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Guarded gateway.
type Option func(*Guarded)

// WithTimeout bounds every remote call. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(g *Guarded) {
		if cb != nil {
			g.breaker = cb
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guarded) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuarded wraps next. Panics if next is nil.
func NewGuarded(next Gateway, opts ...Option) *Guarded {
	if next == nil {
		panic("gateway: next gateway is required")
	}
	g := &Guarded{
		next:    next,
		timeout: 10 * time.Second,
		breaker: NewCircuitBreaker(5, 2, 30*time.Second),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

func call[T any](g *Guarded, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !g.breaker.Allow() {
		return zero, ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := fn(ctx)
	if err == nil || isBusinessError(err) {
		g.breaker.RecordSuccess()
		return res, err
	}

	g.breaker.RecordFailure()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.Join(ErrTimeout, err)
	}
	g.logger.LogAttrs(ctx, slog.LevelWarn, "gateway call failed",
		logger.Component("gateway"),
		slog.String("operation", op),
		logger.Duration(time.Since(start)),
		slog.String("circuit", g.breaker.State().String()),
		logger.Error(err),
	)
	return zero, err
}

// isBusinessError reports errors that say nothing about gateway health.
func isBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotSupported)
}

func callErr(g *Guarded, ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := call(g, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (g *Guarded) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	return call(g, ctx, "create_customer", func(ctx context.Context) (string, error) {
		return g.next.CreateCustomer(ctx, email, name)
	})
}

func (g *Guarded) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return call(g, ctx, "get_customer", func(ctx context.Context) (*Customer, error) {
		return g.next.GetCustomer(ctx, customerID)
	})
}

func (g *Guarded) CreateProduct(ctx context.Context, name, description string) (string, error) {
	return call(g, ctx, "create_product", func(ctx context.Context) (string, error) {
		return g.next.CreateProduct(ctx, name, description)
	})
}

func (g *Guarded) GetProduct(ctx context.Context, productID string) (*Product, error) {
	return call(g, ctx, "get_product", func(ctx context.Context) (*Product, error) {
		return g.next.GetProduct(ctx, productID)
	})
}

func (g *Guarded) UpdateProduct(ctx context.Context, productID, name, description string) error {
	return callErr(g, ctx, "update_product", func(ctx context.Context) error {
		return g.next.UpdateProduct(ctx, productID, name, description)
	})
}

func (g *Guarded) DeleteProduct(ctx context.Context, productID string) error {
	return callErr(g, ctx, "delete_product", func(ctx context.Context) error {
		return g.next.DeleteProduct(ctx, productID)
	})
}

func (g *Guarded) CreatePrice(ctx context.Context, p PriceParams) (string, error) {
	return call(g, ctx, "create_price", func(ctx context.Context) (string, error) {
		return g.next.CreatePrice(ctx, p)
	})
}

func (g *Guarded) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	return call(g, ctx, "get_price", func(ctx context.Context) (*Price, error) {
		return g.next.GetPrice(ctx, priceID)
	})
}

func (g *Guarded) DeactivatePrice(ctx context.Context, priceID string) error {
	return callErr(g, ctx, "deactivate_price", func(ctx context.Context) error {
		return g.next.DeactivatePrice(ctx, priceID)
	})
}

func (g *Guarded) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (string, error) {
	return call(g, ctx, "create_subscription", func(ctx context.Context) (string, error) {
		return g.next.CreateSubscription(ctx, customerID, priceID, paymentMethodID)
	})
}

func (g *Guarded) UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) (bool, error) {
	return call(g, ctx, "update_subscription", func(ctx context.Context) (bool, error) {
		return g.next.UpdateSubscription(ctx, subscriptionID, newPriceID)
	})
}

func (g *Guarded) PauseSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return call(g, ctx, "pause_subscription", func(ctx context.Context) (bool, error) {
		return g.next.PauseSubscription(ctx, subscriptionID)
	})
}

func (g *Guarded) ResumeSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return call(g, ctx, "resume_subscription", func(ctx context.Context) (bool, error) {
		return g.next.ResumeSubscription(ctx, subscriptionID)
	})
}

func (g *Guarded) CancelSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return call(g, ctx, "cancel_subscription", func(ctx context.Context) (bool, error) {
		return g.next.CancelSubscription(ctx, subscriptionID)
	})
}

func (g *Guarded) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return call(g, ctx, "get_subscription", func(ctx context.Context) (*Subscription, error) {
		return g.next.GetSubscription(ctx, subscriptionID)
	})
}

func (g *Guarded) ProcessPayment(ctx context.Context, p Payment) (*PaymentResult, error) {
	return call(g, ctx, "process_payment", func(ctx context.Context) (*PaymentResult, error) {
		return g.next.ProcessPayment(ctx, p)
	})
}

func (g *Guarded) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) (bool, error) {
	return call(g, ctx, "validate_payment_method", func(ctx context.Context) (bool, error) {
		return g.next.ValidatePaymentMethod(ctx, paymentMethodID)
	})
}
