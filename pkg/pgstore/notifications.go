package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/notifications"
)

// NotificationStore keeps the per-user notification feed in PostgreSQL.
type NotificationStore struct {
	pool *pgxpool.Pool
}

var _ notifications.Storage = (*NotificationStore)(nil)

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Create(ctx context.Context, n notifications.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	var data map[string]string
	if len(n.Data) > 0 {
		data = n.Data
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, subscription_id, kind, title, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.SubscriptionID, string(n.Kind), n.Title, n.Message, data, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	var w where
	w.add("user_id = ?", userID)
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		w.add("kind = ANY(?)", kinds)
	}
	if !opts.Since.IsZero() {
		w.add("created_at >= ?", opts.Since)
	}
	query := `SELECT id, user_id, subscription_id, kind, title, message, data, created_at
		FROM notifications` + w.sql() + " ORDER BY created_at DESC, id"
	query += w.limit(opts.Limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]notifications.Notification, 0)
	for rows.Next() {
		var (
			n    notifications.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.SubscriptionID, &kind, &n.Title, &n.Message, &n.Data, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = notifications.Kind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}
