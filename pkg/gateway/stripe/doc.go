// Package stripe adapts the Stripe API (stripe-go) to gateway.Gateway.
//
// Each Gateway owns a client.API instance, so several accounts can be used
// side by side. Amounts are converted to minor units with the currency's
// ISO 4217 scale. Pausing uses pause_collection with the "void" behavior.
package stripe
