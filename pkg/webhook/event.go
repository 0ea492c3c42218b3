package webhook

import (
	"net/http"
	"time"
)

// Normalized event types. Gateway parsers map their native event names onto
// these; anything else is acknowledged and ignored by the Processor.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionPastDue   = "subscription.past_due"
	EventTrialEnded            = "subscription.trial_ended"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
)

// Event is a verified, gateway-neutral webhook notification.
type Event struct {
	ID   string
	Type string
	// Source names the gateway that sent the event.
	Source string
	// SubjectID is the remote subscription id the event is about.
	SubjectID  string
	Status     string
	OccurredAt time.Time
	Data       map[string]string
}

// Parser verifies an inbound request and decodes it into an Event.
// Signature failures wrap ErrInvalidSignature, malformed bodies wrap
// ErrInvalidPayload.
type Parser interface {
	Parse(r *http.Request) (Event, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(r *http.Request) (Event, error)

func (f ParserFunc) Parse(r *http.Request) (Event, error) { return f(r) }
