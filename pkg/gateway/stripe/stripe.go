package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
)

// Gateway implements gateway.Gateway on the Stripe API.
type Gateway struct {
	api *client.API
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a Stripe gateway with its own API client. It never touches
// the package-level stripe.Key.
func New(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.Join(gateway.ErrInvalidInput, errors.New("stripe secret key is required"))
	}
	backendCfg := &stripeapi.BackendConfig{
		MaxNetworkRetries: stripeapi.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripeapi.String(cfg.APIURL)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackend(stripeapi.ConnectBackend),
		Uploads: stripeapi.GetBackend(stripeapi.UploadsBackend),
	})
	return &Gateway{api: api}, nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripeapi.CustomerParams{Email: stripeapi.String(email)}
	if name != "" {
		params.Name = stripeapi.String(name)
	}
	params.Context = ctx
	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return c.ID, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, customerID string) (*gateway.Customer, error) {
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	c, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return &gateway.Customer{ID: c.ID, Email: c.Email, Name: c.Name, Deleted: c.Deleted}, nil
}

func (g *Gateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	params := &stripeapi.ProductParams{Name: stripeapi.String(name)}
	if description != "" {
		params.Description = stripeapi.String(description)
	}
	params.Context = ctx
	p, err := g.api.Products.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return p.ID, nil
}

func (g *Gateway) GetProduct(ctx context.Context, productID string) (*gateway.Product, error) {
	params := &stripeapi.ProductParams{}
	params.Context = ctx
	p, err := g.api.Products.Get(productID, params)
	if err != nil {
		return nil, mapError(err)
	}
	if p.Deleted {
		return nil, gateway.ErrNotFound
	}
	return &gateway.Product{ID: p.ID, Name: p.Name, Description: p.Description, Active: p.Active}, nil
}

func (g *Gateway) UpdateProduct(ctx context.Context, productID, name, description string) error {
	params := &stripeapi.ProductParams{
		Name:        stripeapi.String(name),
		Description: stripeapi.String(description),
	}
	params.Context = ctx
	_, err := g.api.Products.Update(productID, params)
	return mapError(err)
}

func (g *Gateway) DeleteProduct(ctx context.Context, productID string) error {
	params := &stripeapi.ProductParams{}
	params.Context = ctx
	_, err := g.api.Products.Del(productID, params)
	return mapError(err)
}

func (g *Gateway) CreatePrice(ctx context.Context, p gateway.PriceParams) (string, error) {
	amount, err := billing.ToMinorUnits(p.Amount, p.Currency)
	if err != nil {
		return "", errors.Join(gateway.ErrInvalidInput, err)
	}
	params := &stripeapi.PriceParams{
		Product:    stripeapi.String(p.ProductID),
		Currency:   stripeapi.String(strings.ToLower(p.Currency)),
		UnitAmount: stripeapi.Int64(amount),
		Recurring: &stripeapi.PriceRecurringParams{
			Interval:      stripeapi.String(p.IntervalUnit),
			IntervalCount: stripeapi.Int64(p.IntervalCount),
		},
	}
	params.Context = ctx
	price, err := g.api.Prices.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return price.ID, nil
}

func (g *Gateway) GetPrice(ctx context.Context, priceID string) (*gateway.Price, error) {
	params := &stripeapi.PriceParams{}
	params.Context = ctx
	p, err := g.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, mapError(err)
	}
	code := strings.ToUpper(string(p.Currency))
	amount, err := billing.FromMinorUnits(p.UnitAmount, code)
	if err != nil {
		amount = decimal.NewFromInt(p.UnitAmount)
	}
	out := &gateway.Price{
		ID:       p.ID,
		Amount:   amount,
		Currency: code,
		Active:   p.Active,
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		out.IntervalUnit = string(p.Recurring.Interval)
		out.IntervalCount = p.Recurring.IntervalCount
	}
	return out, nil
}

// DeactivatePrice archives the price. Stripe prices cannot be deleted.
func (g *Gateway) DeactivatePrice(ctx context.Context, priceID string) error {
	params := &stripeapi.PriceParams{Active: stripeapi.Bool(false)}
	params.Context = ctx
	_, err := g.api.Prices.Update(priceID, params)
	return mapError(err)
}

func (g *Gateway) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (string, error) {
	params := &stripeapi.SubscriptionParams{
		Customer: stripeapi.String(customerID),
		Items: []*stripeapi.SubscriptionItemsParams{
			{Price: stripeapi.String(priceID)},
		},
	}
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripeapi.String(paymentMethodID)
	}
	params.Context = ctx
	s, err := g.api.Subscriptions.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return s.ID, nil
}

// UpdateSubscription swaps the price of the subscription's single item.
func (g *Gateway) UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) (bool, error) {
	s, err := g.getSubscription(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	if s.Items == nil || len(s.Items.Data) == 0 {
		return false, errors.Join(gateway.ErrInvalidInput, fmt.Errorf("subscription %s has no items", subscriptionID))
	}
	params := &stripeapi.SubscriptionParams{
		Items: []*stripeapi.SubscriptionItemsParams{
			{ID: stripeapi.String(s.Items.Data[0].ID), Price: stripeapi.String(newPriceID)},
		},
		ProrationBehavior: stripeapi.String("none"),
	}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// PauseSubscription pauses collection; invoices are voided while paused.
func (g *Gateway) PauseSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	params := &stripeapi.SubscriptionParams{
		PauseCollection: &stripeapi.SubscriptionPauseCollectionParams{
			Behavior: stripeapi.String("void"),
		},
	}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *Gateway) ResumeSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	params := &stripeapi.SubscriptionParams{}
	params.AddExtra("pause_collection", "")
	params.Context = ctx
	if _, err := g.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	params := &stripeapi.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *Gateway) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	s, err := g.getSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	out := &gateway.Subscription{
		ID:     s.ID,
		Status: subscriptionStatus(s),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out, nil
}

func (g *Gateway) getSubscription(ctx context.Context, id string) (*stripeapi.Subscription, error) {
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	s, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// ProcessPayment creates and confirms an off-session PaymentIntent. A card
// decline is returned as a failed result, not an error.
func (g *Gateway) ProcessPayment(ctx context.Context, p gateway.Payment) (*gateway.PaymentResult, error) {
	amount, err := billing.ToMinorUnits(p.Amount, p.Currency)
	if err != nil {
		return nil, errors.Join(gateway.ErrInvalidInput, err)
	}
	if amount <= 0 {
		return nil, errors.Join(gateway.ErrInvalidInput, errors.New("amount must be positive"))
	}
	params := &stripeapi.PaymentIntentParams{
		Amount:     stripeapi.Int64(amount),
		Currency:   stripeapi.String(strings.ToLower(p.Currency)),
		Confirm:    stripeapi.Bool(true),
		OffSession: stripeapi.Bool(true),
	}
	if p.CustomerID != "" {
		params.Customer = stripeapi.String(p.CustomerID)
	}
	if p.PaymentMethodID != "" {
		params.PaymentMethod = stripeapi.String(p.PaymentMethodID)
	}
	if p.Description != "" {
		params.Description = stripeapi.String(p.Description)
	}
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripeapi.String(p.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripeapi.Error
		if errors.As(err, &se) && se.Type == stripeapi.ErrorTypeCard {
			res := &gateway.PaymentResult{Status: gateway.PaymentFailed, ErrorMessage: se.Msg}
			if se.PaymentIntent != nil {
				res.ID = se.PaymentIntent.ID
			}
			return res, nil
		}
		return nil, mapError(err)
	}
	res := &gateway.PaymentResult{ID: pi.ID, Status: paymentStatus(pi.Status)}
	if pi.LastPaymentError != nil {
		res.ErrorMessage = pi.LastPaymentError.Msg
	}
	return res, nil
}

func (g *Gateway) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) (bool, error) {
	if paymentMethodID == "" {
		return false, nil
	}
	params := &stripeapi.PaymentMethodParams{}
	params.Context = ctx
	pm, err := g.api.PaymentMethods.Get(paymentMethodID, params)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, gateway.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if pm.Card != nil && pm.Card.ExpYear > 0 {
		exp := time.Date(int(pm.Card.ExpYear), time.Month(pm.Card.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
		return time.Now().Before(exp), nil
	}
	return true, nil
}
