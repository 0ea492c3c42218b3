package stripe

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/subsync/pkg/webhook"
)

const webhookBodyLimit = 1024 * 1024

// WebhookParser verifies Stripe-Signature headers and normalizes events.
type WebhookParser struct {
	secret string
}

var _ webhook.Parser = (*WebhookParser)(nil)

// NewWebhookParser creates a parser for the endpoint signing secret.
func NewWebhookParser(secret string) (*WebhookParser, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.Join(webhook.ErrInvalidConfiguration, errors.New("stripe webhook secret is required"))
	}
	return &WebhookParser{secret: secret}, nil
}

func (p *WebhookParser) Parse(r *http.Request) (webhook.Event, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidPayload, err)
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidSignature, errors.New("missing Stripe-Signature header"))
	}
	event, err := stripewebhook.ConstructEventWithOptions(payload, sig, p.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidSignature, err)
	}
	return normalizeEvent(event)
}

// eventObject is the subset of subscription and invoice objects the
// processor needs.
type eventObject struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Status       string `json:"status"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	PauseCollection *struct {
		Behavior string `json:"behavior"`
	} `json:"pause_collection"`
}

func normalizeEvent(event stripeapi.Event) (webhook.Event, error) {
	ev := webhook.Event{
		ID:     event.ID,
		Type:   string(event.Type),
		Source: "stripe",
		Data:   map[string]string{"provider_event": string(event.Type)},
	}
	if event.Created > 0 {
		ev.OccurredAt = time.Unix(event.Created, 0).UTC()
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return ev, nil
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidPayload, err)
	}
	if obj.Customer != "" {
		ev.Data["customer_id"] = obj.Customer
	}

	switch obj.Object {
	case "subscription":
		ev.SubjectID = obj.ID
		ev.Status = obj.Status
		if obj.PauseCollection != nil && obj.PauseCollection.Behavior != "" {
			ev.Status = "paused"
		}
	case "invoice":
		ev.SubjectID = obj.Subscription
		if obj.Parent != nil && obj.Parent.SubscriptionDetails != nil && obj.Parent.SubscriptionDetails.Subscription != "" {
			ev.SubjectID = obj.Parent.SubscriptionDetails.Subscription
		}
		ev.Data["invoice_id"] = obj.ID
	}
	ev.Type = eventType(string(event.Type), ev.Status)
	return ev, nil
}

// eventType maps Stripe event names to the normalized processor types.
func eventType(name, status string) string {
	switch name {
	case "customer.subscription.paused":
		return webhook.EventSubscriptionPaused
	case "customer.subscription.resumed":
		return webhook.EventSubscriptionResumed
	case "customer.subscription.deleted":
		return webhook.EventSubscriptionCanceled
	case "customer.subscription.trial_will_end":
		return name
	case "invoice.paid", "invoice.payment_succeeded":
		return webhook.EventPaymentSucceeded
	case "invoice.payment_failed":
		return webhook.EventPaymentFailed
	case "customer.subscription.updated":
		switch status {
		case "paused":
			return webhook.EventSubscriptionPaused
		case "canceled":
			return webhook.EventSubscriptionCanceled
		case "past_due", "unpaid":
			return webhook.EventSubscriptionPastDue
		case "active":
			return webhook.EventSubscriptionActivated
		}
	}
	return name
}
