package paddle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/subsync/pkg/webhook"
)

// WebhookParser verifies Paddle-Signature headers and normalizes events.
type WebhookParser struct {
	verifier *paddlesdk.WebhookVerifier
}

var _ webhook.Parser = (*WebhookParser)(nil)

// NewWebhookParser creates a parser for the given webhook secret.
func NewWebhookParser(secret string) (*WebhookParser, error) {
	if secret == "" {
		return nil, errors.Join(webhook.ErrInvalidConfiguration, errors.New("paddle webhook secret is required"))
	}
	return &WebhookParser{verifier: paddlesdk.NewWebhookVerifier(secret)}, nil
}

// Parse verifies the request signature and decodes the body. The request
// body is restored so it can be read again.
func (p *WebhookParser) Parse(r *http.Request) (webhook.Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidPayload, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := p.verifier.Verify(r)
	if err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidSignature, err)
	}
	if !valid {
		return webhook.Event{}, webhook.ErrInvalidSignature
	}
	return ParseEvent(body)
}

type eventEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// ParseEvent decodes an already verified Paddle notification.
func ParseEvent(payload []byte) (webhook.Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidPayload, fmt.Errorf("decode paddle event: %w", err))
	}
	if env.EventID == "" || env.EventType == "" {
		return webhook.Event{}, errors.Join(webhook.ErrInvalidPayload, errors.New("paddle event id and type are required"))
	}

	ev := webhook.Event{
		ID:     env.EventID,
		Type:   eventType(env.EventType, env.Data),
		Source: "paddle",
		Data:   map[string]string{"provider_event": env.EventType},
	}
	if t, err := time.Parse(time.RFC3339, env.OccurredAt); err == nil {
		ev.OccurredAt = t.UTC()
	}

	status, _ := env.Data["status"].(string)
	ev.Status = normalizeStatus(status)

	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		ev.SubjectID, _ = env.Data["id"].(string)
	case strings.HasPrefix(env.EventType, "transaction."):
		ev.SubjectID, _ = env.Data["subscription_id"].(string)
		if id, ok := env.Data["id"].(string); ok {
			ev.Data["transaction_id"] = id
		}
	}
	if customerID, ok := env.Data["customer_id"].(string); ok {
		ev.Data["customer_id"] = customerID
	}
	return ev, nil
}

// eventType maps Paddle event names to the normalized types understood by
// webhook.Processor. subscription.updated is resolved by its status.
func eventType(name string, data map[string]any) string {
	switch name {
	case "subscription.activated":
		return webhook.EventSubscriptionActivated
	case "subscription.paused":
		return webhook.EventSubscriptionPaused
	case "subscription.resumed":
		return webhook.EventSubscriptionResumed
	case "subscription.canceled":
		return webhook.EventSubscriptionCanceled
	case "subscription.past_due":
		return webhook.EventSubscriptionPastDue
	case "transaction.completed", "transaction.paid":
		return webhook.EventPaymentSucceeded
	case "transaction.payment_failed":
		return webhook.EventPaymentFailed
	case "subscription.updated":
		status, _ := data["status"].(string)
		switch normalizeStatus(status) {
		case "paused":
			return webhook.EventSubscriptionPaused
		case "canceled":
			return webhook.EventSubscriptionCanceled
		case "past_due":
			return webhook.EventSubscriptionPastDue
		}
	}
	return name
}
