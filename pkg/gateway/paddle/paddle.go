package paddle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
)

// Gateway implements gateway.Gateway on Paddle Billing.
//
// Paddle creates subscriptions only through checkout and charges only
// through transactions, so CreateSubscription, UpdateSubscription,
// ProcessPayment and ValidatePaymentMethod return gateway.ErrNotSupported.
type Gateway struct {
	client *paddlesdk.SDK
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a Paddle gateway for the configured environment.
func New(cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(gateway.ErrInvalidInput, errors.New("paddle API key is required"))
	}

	var (
		client *paddlesdk.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddlesdk.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddlesdk.New(cfg.APIKey)
	default:
		return nil, errors.Join(gateway.ErrInvalidInput, fmt.Errorf("invalid paddle environment: %s", cfg.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return &Gateway{client: client}, nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	req := &paddlesdk.CreateCustomerRequest{Email: email}
	if name != "" {
		req.Name = paddlesdk.PtrTo(name)
	}
	res, err := g.client.CustomersClient.CreateCustomer(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	var c customerData
	if err := decode(res, &c); err != nil {
		return "", err
	}
	return c.ID, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, customerID string) (*gateway.Customer, error) {
	res, err := g.client.CustomersClient.GetCustomer(ctx, &paddlesdk.GetCustomerRequest{CustomerID: customerID})
	if err != nil {
		return nil, mapError(err)
	}
	var c customerData
	if err := decode(res, &c); err != nil {
		return nil, err
	}
	return &gateway.Customer{
		ID:      c.ID,
		Email:   c.Email,
		Name:    c.Name,
		Deleted: c.Status == "archived",
	}, nil
}

func (g *Gateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	req := &paddlesdk.CreateProductRequest{
		Name:        name,
		TaxCategory: paddlesdk.TaxCategoryStandard,
	}
	if description != "" {
		req.Description = paddlesdk.PtrTo(description)
	}
	res, err := g.client.ProductsClient.CreateProduct(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	var p productData
	if err := decode(res, &p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (g *Gateway) GetProduct(ctx context.Context, productID string) (*gateway.Product, error) {
	res, err := g.client.ProductsClient.GetProduct(ctx, &paddlesdk.GetProductRequest{ProductID: productID})
	if err != nil {
		return nil, mapError(err)
	}
	var p productData
	if err := decode(res, &p); err != nil {
		return nil, err
	}
	return &gateway.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Status == "active",
	}, nil
}

// UpdateProduct is not supported: catalog edits are made in the Paddle
// dashboard and the engine repairs by recreating the price.
func (g *Gateway) UpdateProduct(context.Context, string, string, string) error {
	return gateway.ErrNotSupported
}

// DeleteProduct is not supported: Paddle products can only be archived.
func (g *Gateway) DeleteProduct(context.Context, string) error {
	return gateway.ErrNotSupported
}

func (g *Gateway) CreatePrice(ctx context.Context, p gateway.PriceParams) (string, error) {
	amount, err := billing.ToMinorUnits(p.Amount, p.Currency)
	if err != nil {
		return "", errors.Join(gateway.ErrInvalidInput, err)
	}
	req := &paddlesdk.CreatePriceRequest{
		Description: fmt.Sprintf("%d %s", p.IntervalCount, p.IntervalUnit),
		ProductID:   p.ProductID,
		UnitPrice: paddlesdk.Money{
			Amount:       fmt.Sprintf("%d", amount),
			CurrencyCode: paddlesdk.CurrencyCode(strings.ToUpper(p.Currency)),
		},
		BillingCycle: &paddlesdk.Duration{
			Interval:  paddlesdk.Interval(p.IntervalUnit),
			Frequency: int(p.IntervalCount),
		},
	}
	res, err := g.client.PricesClient.CreatePrice(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	var pr priceData
	if err := decode(res, &pr); err != nil {
		return "", err
	}
	return pr.ID, nil
}

func (g *Gateway) GetPrice(ctx context.Context, priceID string) (*gateway.Price, error) {
	res, err := g.client.PricesClient.GetPrice(ctx, &paddlesdk.GetPriceRequest{PriceID: priceID})
	if err != nil {
		return nil, mapError(err)
	}
	var pr priceData
	if err := decode(res, &pr); err != nil {
		return nil, err
	}
	return pr.toGateway()
}

// DeactivatePrice is not supported through this adapter.
func (g *Gateway) DeactivatePrice(context.Context, string) error {
	return gateway.ErrNotSupported
}

func (g *Gateway) CreateSubscription(context.Context, string, string, string) (string, error) {
	return "", gateway.ErrNotSupported
}

func (g *Gateway) UpdateSubscription(context.Context, string, string) (bool, error) {
	return false, gateway.ErrNotSupported
}

func (g *Gateway) PauseSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	_, err := g.client.SubscriptionsClient.PauseSubscription(ctx, &paddlesdk.PauseSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *Gateway) ResumeSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	_, err := g.client.SubscriptionsClient.ResumeSubscription(ctx, &paddlesdk.ResumeSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// CancelSubscription cancels immediately rather than at period end.
func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddlesdk.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
		EffectiveFrom:  paddlesdk.PtrTo(paddlesdk.EffectiveFromImmediately),
	})
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *Gateway) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	res, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddlesdk.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return nil, mapError(err)
	}
	var s subscriptionData
	if err := decode(res, &s); err != nil {
		return nil, err
	}
	return s.toGateway(), nil
}

func (g *Gateway) ProcessPayment(context.Context, gateway.Payment) (*gateway.PaymentResult, error) {
	return nil, gateway.ErrNotSupported
}

func (g *Gateway) ValidatePaymentMethod(context.Context, string) (bool, error) {
	return false, gateway.ErrNotSupported
}

// decode copies an SDK response into one of the local wire shapes below.
// Paddle's JSON field names are stable across SDK releases; the generated
// Go types are not.
func decode(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("paddle: encode response: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("paddle: decode response: %w", err)
	}
	return nil
}

type customerData struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type productData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type priceData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
	UnitPrice struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	} `json:"unit_price"`
	BillingCycle *struct {
		Interval  string `json:"interval"`
		Frequency int64  `json:"frequency"`
	} `json:"billing_cycle"`
}

func (p priceData) toGateway() (*gateway.Price, error) {
	out := &gateway.Price{
		ID:        p.ID,
		ProductID: p.ProductID,
		Currency:  p.UnitPrice.CurrencyCode,
		Active:    p.Status == "active",
	}
	minor, err := decimal.NewFromString(p.UnitPrice.Amount)
	if err != nil {
		return nil, fmt.Errorf("paddle: invalid unit price %q: %w", p.UnitPrice.Amount, err)
	}
	if amount, err := billing.FromMinorUnits(minor.IntPart(), p.UnitPrice.CurrencyCode); err == nil {
		out.Amount = amount
	} else {
		out.Amount = minor
	}
	if p.BillingCycle != nil {
		out.IntervalUnit = p.BillingCycle.Interval
		out.IntervalCount = p.BillingCycle.Frequency
	}
	return out, nil
}

type subscriptionData struct {
	ID                   string `json:"id"`
	Status               string `json:"status"`
	CustomerID           string `json:"customer_id"`
	CurrentBillingPeriod *struct {
		EndsAt string `json:"ends_at"`
	} `json:"current_billing_period"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func (s subscriptionData) toGateway() *gateway.Subscription {
	out := &gateway.Subscription{
		ID:         s.ID,
		Status:     normalizeStatus(s.Status),
		CustomerID: s.CustomerID,
	}
	if len(s.Items) > 0 {
		out.PriceID = s.Items[0].Price.ID
	}
	if s.CurrentBillingPeriod != nil {
		if t, err := time.Parse(time.RFC3339, s.CurrentBillingPeriod.EndsAt); err == nil {
			out.CurrentPeriodEnd = t.UTC()
		}
	}
	return out
}

// normalizeStatus maps Paddle statuses onto the vocabulary shared by all
// adapters: active, trialing, past_due, paused, canceled.
func normalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "canceled", "cancelled":
		return "canceled"
	default:
		return strings.ToLower(s)
	}
}

// mapError classifies SDK errors by Paddle's error code.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not_found"):
		return errors.Join(gateway.ErrNotFound, err)
	case strings.Contains(msg, "invalid_field"), strings.Contains(msg, "bad_request"):
		return errors.Join(gateway.ErrInvalidInput, err)
	}
	return err
}
