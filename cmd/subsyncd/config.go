package main

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// AppConfig holds daemon-level settings. Each package parses its own
// config struct from the environment as well.
type AppConfig struct {
	Env         string        `env:"APP_ENV" envDefault:"development"`
	ServiceName string        `env:"APP_NAME" envDefault:"subsyncd"`
	LogLevel    slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	// Gateway selects the payment gateway adapter: "stripe" or "paddle".
	Gateway             string        `env:"GATEWAY" envDefault:"stripe"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	SyncTimeout         time.Duration `env:"SYNC_TIMEOUT" envDefault:"15s"`

	// InternalWebhookSecret enables /webhooks/internal for HMAC-signed
	// events from first-party systems.
	InternalWebhookSecret string        `env:"INTERNAL_WEBHOOK_SECRET"`
	WebhookMaxAge         time.Duration `env:"WEBHOOK_MAX_AGE" envDefault:"5m"`
	WebhookMaxRetries     int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`
	WebhookLease          time.Duration `env:"WEBHOOK_LEASE" envDefault:"2m"`

	// AdminToken enables the /admin routes behind a bearer token.
	AdminToken string `env:"ADMIN_TOKEN"`

	// PlansFile seeds the plan catalog from YAML on startup.
	PlansFile string `env:"PLANS_FILE"`
	// EmailEnabled delivers notifications through Postmark (POSTMARK_*).
	EmailEnabled     bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	NotificationsDir string `env:"NOTIFICATIONS_DIR"`
}
