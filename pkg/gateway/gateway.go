package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the capability surface of a remote payment gateway.
//
// Creation calls are not idempotent: retrying CreateCustomer, CreateProduct,
// CreatePrice or CreateSubscription after an ambiguous failure may create
// duplicates, so callers must not retry them blindly. Lookups return
// ErrNotFound when the remote resource does not exist.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	CreateProduct(ctx context.Context, name, description string) (string, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	UpdateProduct(ctx context.Context, productID, name, description string) error
	DeleteProduct(ctx context.Context, productID string) error

	CreatePrice(ctx context.Context, p PriceParams) (string, error)
	GetPrice(ctx context.Context, priceID string) (*Price, error)
	DeactivatePrice(ctx context.Context, priceID string) error

	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (string, error)
	UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) (bool, error)
	PauseSubscription(ctx context.Context, subscriptionID string) (bool, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (bool, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (bool, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	ProcessPayment(ctx context.Context, p Payment) (*PaymentResult, error)
	ValidatePaymentMethod(ctx context.Context, paymentMethodID string) (bool, error)
}

// Customer is a remote customer record.
type Customer struct {
	ID      string
	Email   string
	Name    string
	Deleted bool
}

// Product is a remote catalog product.
type Product struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

// PriceParams describes a recurring price to create.
type PriceParams struct {
	ProductID     string
	Amount        decimal.Decimal
	Currency      string
	IntervalUnit  string // "month" or "year"
	IntervalCount int64
}

// Price is a remote recurring price.
type Price struct {
	ID            string
	ProductID     string
	Amount        decimal.Decimal
	Currency      string
	IntervalUnit  string
	IntervalCount int64
	Active        bool
}

// Subscription is the remote view of a subscription.
type Subscription struct {
	ID               string
	Status           string
	CustomerID       string
	PriceID          string
	CurrentPeriodEnd time.Time
}

// Payment is a one-off charge request. PaymentMethodID wins over CustomerID
// when both are set.
type Payment struct {
	PaymentMethodID string
	CustomerID      string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	// IdempotencyKey lets gateways that support it deduplicate retries.
	IdempotencyKey string
}

// PaymentStatus is the normalized outcome of a charge.
type PaymentStatus string

const (
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentPending        PaymentStatus = "pending"
	PaymentRequiresAction PaymentStatus = "requires_action"
)

// PaymentResult reports what happened to a charge. A declined card is a
// result with Status PaymentFailed, not an error.
type PaymentResult struct {
	ID           string
	Status       PaymentStatus
	ErrorMessage string
}

// Succeeded reports whether the money moved.
func (r *PaymentResult) Succeeded() bool {
	return r != nil && r.Status == PaymentSucceeded
}
