// Package webhook receives payment gateway notifications and applies them
// to local subscriptions.
//
// A Parser verifies the request signature and normalizes the gateway's
// event into an Event. The Stripe and Paddle parsers live next to their
// gateway adapters; HMACParser accepts pre-normalized events signed with a
// shared secret.
//
// Processor consults the idempotency guard, looks up the subscription by
// its remote id and drives subscription.Service:
//
//	subscription.paused|resumed|activated|canceled|past_due|trial_ended
//	    → RequestTransition (Remote: true, nothing is pushed back)
//	payment.succeeded → Renew
//	payment.failed    → PaymentFailed
//
// Anything else is acknowledged and recorded as processed with metadata
// "ignored". Handler wires a Parser and a Processor into an http.Handler.
//
//	proc := webhook.NewProcessor(guard, svc, webhook.WithLogger(log))
//	r.Method(http.MethodPost, "/webhooks/stripe", webhook.Handler(parser, proc, log))
package webhook
