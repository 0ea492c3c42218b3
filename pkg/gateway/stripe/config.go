package stripe

// Config holds Stripe credentials.
type Config struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
	// APIURL overrides the API endpoint, e.g. for stripe-mock.
	APIURL string `env:"STRIPE_API_URL"`
	// MaxNetworkRetries is left at zero by default: creation calls must not
	// be retried blindly.
	MaxNetworkRetries int64 `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"0"`
}
