package httpserver

import (
	"log/slog"
	"time"
)

// Option configures a Server. Empty or non-positive values keep the
// defaults.
type Option func(*config)

func WithAddr(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.addr = addr
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return positive(d, func(c *config) { c.readTimeout = d })
}

func WithWriteTimeout(d time.Duration) Option {
	return positive(d, func(c *config) { c.writeTimeout = d })
}

func WithIdleTimeout(d time.Duration) Option {
	return positive(d, func(c *config) { c.idleTimeout = d })
}

// WithShutdownTimeout bounds graceful shutdown. Webhook requests still
// running after it are cut off and redelivered by the gateway.
func WithShutdownTimeout(d time.Duration) Option {
	return positive(d, func(c *config) { c.shutdownTimeout = d })
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func positive(d time.Duration, set func(*config)) Option {
	return func(c *config) {
		if d > 0 {
			set(c)
		}
	}
}
