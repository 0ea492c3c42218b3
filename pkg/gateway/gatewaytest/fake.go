// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/subsync/pkg/gateway"
)

// Operation names accepted by Fail, Block and Calls.
const (
	OpCreateCustomer        = "create_customer"
	OpGetCustomer           = "get_customer"
	OpCreateProduct         = "create_product"
	OpGetProduct            = "get_product"
	OpUpdateProduct         = "update_product"
	OpDeleteProduct         = "delete_product"
	OpCreatePrice           = "create_price"
	OpGetPrice              = "get_price"
	OpDeactivatePrice       = "deactivate_price"
	OpCreateSubscription    = "create_subscription"
	OpUpdateSubscription    = "update_subscription"
	OpPauseSubscription     = "pause_subscription"
	OpResumeSubscription    = "resume_subscription"
	OpCancelSubscription    = "cancel_subscription"
	OpGetSubscription       = "get_subscription"
	OpProcessPayment        = "process_payment"
	OpValidatePaymentMethod = "validate_payment_method"
)

// Fake is a concurrency-safe in-memory gateway.
type Fake struct {
	mu sync.Mutex

	seq       int
	customers map[string]*gateway.Customer
	products  map[string]*gateway.Product
	prices    map[string]*gateway.Price
	subs      map[string]*gateway.Subscription

	failures map[string]error
	blocked  map[string]bool
	calls    map[string]int
	payments []gateway.Payment

	// DeclineAll makes ProcessPayment return a failed result.
	DeclineAll bool
	// DeclineFor declines payments for the given payment method ids.
	DeclineFor map[string]bool
	// InvalidMethods lists payment methods ValidatePaymentMethod rejects.
	InvalidMethods map[string]bool
	// PeriodEnd is returned as CurrentPeriodEnd for new subscriptions.
	PeriodEnd time.Time
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		customers:      make(map[string]*gateway.Customer),
		products:       make(map[string]*gateway.Product),
		prices:         make(map[string]*gateway.Price),
		subs:           make(map[string]*gateway.Subscription),
		failures:       make(map[string]error),
		blocked:        make(map[string]bool),
		calls:          make(map[string]int),
		DeclineFor:     make(map[string]bool),
		InvalidMethods: make(map[string]bool),
	}
}

// Fail makes every later call of op return err until cleared with Fail(op, nil).
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Block makes op wait until its context is done, simulating a hung gateway.
func (f *Fake) Block(op string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[op] = on
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Payments returns every payment request received.
func (f *Fake) Payments() []gateway.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Payment(nil), f.payments...)
}

// Subscription returns a copy of the stored remote subscription.
func (f *Fake) Subscription(id string) (gateway.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return gateway.Subscription{}, false
	}
	return *s, true
}

// Product returns a copy of the stored product.
func (f *Fake) Product(id string) (gateway.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return gateway.Product{}, false
	}
	return *p, true
}

// Price returns a copy of the stored price.
func (f *Fake) Price(id string) (gateway.Price, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[id]
	if !ok {
		return gateway.Price{}, false
	}
	return *p, true
}

// SetPeriodEnd overrides the period end of a stored subscription.
func (f *Fake) SetPeriodEnd(id string, end time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok {
		s.CurrentPeriodEnd = end
	}
}

// RemoveSubscription deletes a remote subscription, simulating drift.
func (f *Fake) RemoveSubscription(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// RemoveCustomer deletes a remote customer, simulating drift.
func (f *Fake) RemoveCustomer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.customers, id)
}

// RemoveProduct deletes a remote product, simulating drift.
func (f *Fake) RemoveProduct(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.products, id)
}

// enter records the call and applies injected faults. It returns with the
// mutex held on success.
func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	blocked := f.blocked[op]
	err := f.failures[op]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	if err := f.enter(ctx, OpCreateCustomer); err != nil {
		return "", err
	}
	defer f.mu.Unlock()
	id := f.nextID("cus")
	f.customers[id] = &gateway.Customer{ID: id, Email: email, Name: name}
	return id, nil
}

func (f *Fake) GetCustomer(ctx context.Context, customerID string) (*gateway.Customer, error) {
	if err := f.enter(ctx, OpGetCustomer); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) CreateProduct(ctx context.Context, name, description string) (string, error) {
	if err := f.enter(ctx, OpCreateProduct); err != nil {
		return "", err
	}
	defer f.mu.Unlock()
	id := f.nextID("prod")
	f.products[id] = &gateway.Product{ID: id, Name: name, Description: description, Active: true}
	return id, nil
}

func (f *Fake) GetProduct(ctx context.Context, productID string) (*gateway.Product, error) {
	if err := f.enter(ctx, OpGetProduct); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) UpdateProduct(ctx context.Context, productID, name, description string) error {
	if err := f.enter(ctx, OpUpdateProduct); err != nil {
		return err
	}
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return gateway.ErrNotFound
	}
	p.Name, p.Description = name, description
	return nil
}

func (f *Fake) DeleteProduct(ctx context.Context, productID string) error {
	if err := f.enter(ctx, OpDeleteProduct); err != nil {
		return err
	}
	defer f.mu.Unlock()
	if _, ok := f.products[productID]; !ok {
		return gateway.ErrNotFound
	}
	delete(f.products, productID)
	return nil
}

func (f *Fake) CreatePrice(ctx context.Context, p gateway.PriceParams) (string, error) {
	if err := f.enter(ctx, OpCreatePrice); err != nil {
		return "", err
	}
	defer f.mu.Unlock()
	if _, ok := f.products[p.ProductID]; !ok {
		return "", gateway.ErrNotFound
	}
	id := f.nextID("price")
	f.prices[id] = &gateway.Price{
		ID:            id,
		ProductID:     p.ProductID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		IntervalUnit:  p.IntervalUnit,
		IntervalCount: p.IntervalCount,
		Active:        true,
	}
	return id, nil
}

func (f *Fake) GetPrice(ctx context.Context, priceID string) (*gateway.Price, error) {
	if err := f.enter(ctx, OpGetPrice); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	p, ok := f.prices[priceID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) DeactivatePrice(ctx context.Context, priceID string) error {
	if err := f.enter(ctx, OpDeactivatePrice); err != nil {
		return err
	}
	defer f.mu.Unlock()
	p, ok := f.prices[priceID]
	if !ok {
		return gateway.ErrNotFound
	}
	p.Active = false
	return nil
}

func (f *Fake) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (string, error) {
	if err := f.enter(ctx, OpCreateSubscription); err != nil {
		return "", err
	}
	defer f.mu.Unlock()
	if _, ok := f.customers[customerID]; !ok {
		return "", gateway.ErrNotFound
	}
	if _, ok := f.prices[priceID]; !ok {
		return "", gateway.ErrNotFound
	}
	id := f.nextID("sub")
	f.subs[id] = &gateway.Subscription{
		ID:               id,
		Status:           "active",
		CustomerID:       customerID,
		PriceID:          priceID,
		CurrentPeriodEnd: f.PeriodEnd,
	}
	return id, nil
}

func (f *Fake) UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) (bool, error) {
	return f.mutateSub(ctx, OpUpdateSubscription, subscriptionID, func(s *gateway.Subscription) { s.PriceID = newPriceID })
}

func (f *Fake) PauseSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return f.mutateSub(ctx, OpPauseSubscription, subscriptionID, func(s *gateway.Subscription) { s.Status = "paused" })
}

func (f *Fake) ResumeSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return f.mutateSub(ctx, OpResumeSubscription, subscriptionID, func(s *gateway.Subscription) { s.Status = "active" })
}

func (f *Fake) CancelSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return f.mutateSub(ctx, OpCancelSubscription, subscriptionID, func(s *gateway.Subscription) { s.Status = "canceled" })
}

func (f *Fake) mutateSub(ctx context.Context, op, id string, fn func(*gateway.Subscription)) (bool, error) {
	if err := f.enter(ctx, op); err != nil {
		return false, err
	}
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	fn(s)
	return true, nil
}

func (f *Fake) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	if err := f.enter(ctx, OpGetSubscription); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	s, ok := f.subs[subscriptionID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *Fake) ProcessPayment(ctx context.Context, p gateway.Payment) (*gateway.PaymentResult, error) {
	if err := f.enter(ctx, OpProcessPayment); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	f.payments = append(f.payments, p)
	id := f.nextID("pi")
	if f.DeclineAll || f.DeclineFor[p.PaymentMethodID] {
		return &gateway.PaymentResult{ID: id, Status: gateway.PaymentFailed, ErrorMessage: "card declined"}, nil
	}
	return &gateway.PaymentResult{ID: id, Status: gateway.PaymentSucceeded}, nil
}

func (f *Fake) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) (bool, error) {
	if err := f.enter(ctx, OpValidatePaymentMethod); err != nil {
		return false, err
	}
	defer f.mu.Unlock()
	return paymentMethodID != "" && !f.InvalidMethods[paymentMethodID], nil
}
