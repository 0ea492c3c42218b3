package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Manager stores notifications and hands them to a deliverer.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDeliveryTimeout bounds background delivery started by Notify.
func WithDeliveryTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager creates a Manager. A nil deliverer means store-only.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if storage == nil {
		panic("notifications: storage is required")
	}
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		timeout:   30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores n and delivers it. A delivery error is logged, not returned:
// the notification is already persisted.
func (m *Manager) Send(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	if err := m.storage.Create(ctx, n); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	if err := m.deliverer.Deliver(ctx, n); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "notification stored but delivery failed",
			slog.String("notification_id", n.ID),
			slog.String("kind", string(n.Kind)),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
	}
	return nil
}

// Notify sends n in the background. Callers never wait on or fail because
// of a notification.
func (m *Manager) Notify(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := m.Send(ctx, n); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to send notification",
				slog.String("kind", string(n.Kind)),
				logger.UserID(n.UserID),
				logger.SubscriptionID(n.SubscriptionID),
				logger.Error(err),
			)
		}
	}()
}

// List returns stored notifications for a user.
func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}
