// Package gateway defines the payment gateway capability consumed by the
// subscription core, plus Guarded, a wrapper that puts a timeout and a
// circuit breaker in front of every remote call.
//
// Adapters live in subpackages: gateway/stripe (stripe-go) and
// gateway/paddle (Paddle Billing SDK). gateway/gatewaytest provides an
// in-memory fake with fault injection for tests.
//
//	gw := gateway.NewGuarded(stripe.New(cfg), gateway.WithTimeout(5*time.Second))
//
// Amounts cross this interface in major units as decimal.Decimal; adapters
// convert to the gateway's minor units.
package gateway
