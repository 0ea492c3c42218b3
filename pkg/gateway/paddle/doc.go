// Package paddle adapts Paddle Billing (paddle-go-sdk) to gateway.Gateway
// and parses Paddle webhook notifications into webhook.Event values.
//
// Paddle owns checkout, so operations that have no Paddle API equivalent
// return gateway.ErrNotSupported. Use the Stripe adapter when the engine
// must create subscriptions or charge prorations itself.
//
//	gw, err := paddle.New(cfg)
//	parser, err := paddle.NewWebhookParser(cfg.WebhookSecret)
package paddle
