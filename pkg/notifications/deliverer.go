package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Deliverer pushes a stored notification to the user through some channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// MultiDeliverer fans a notification out to several channels. A failing
// channel is logged and does not stop the others.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// NewMultiDeliverer creates a MultiDeliverer. Nil deliverers are skipped.
func NewMultiDeliverer(log *slog.Logger, deliverers ...Deliverer) *MultiDeliverer {
	if log == nil {
		log = slog.Default()
	}
	clean := make([]Deliverer, 0, len(deliverers))
	for _, d := range deliverers {
		if d != nil {
			clean = append(clean, d)
		}
	}
	return &MultiDeliverer{deliverers: clean, logger: log}
}

func (m *MultiDeliverer) Deliver(ctx context.Context, n Notification) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, n); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "notification channel failed",
				slog.String("notification_id", n.ID),
				slog.String("kind", string(n.Kind)),
				logger.UserID(n.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpDeliverer discards notifications.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error { return nil }
