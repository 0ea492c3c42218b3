package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

var subscriptionColumns = []string{
	"id", "user_id", "plan_id", "billing_cycle", "status", "price", "currency",
	"start_date", "trial_start", "trial_end", "next_billing_date",
	"activated_date", "paused_date", "resumed_date", "suspended_date",
	"payment_failed_date", "cancelled_date", "expired_date", "trial_expired_date",
	"pause_reason", "suspension_reason", "cancellation_reason",
	"remote_customer_id", "remote_subscription_id", "remote_price_id", "payment_method_id",
	"auto_renew", "sync_pending", "last_sync_error", "last_synced_at",
	"version", "created_at", "updated_at",
}

var (
	selectSubscription = "SELECT " + strings.Join(subscriptionColumns, ", ") + " FROM subscriptions"
	insertSubscription = "INSERT INTO subscriptions (" + strings.Join(subscriptionColumns, ", ") +
		") VALUES (" + placeholders(len(subscriptionColumns)) + ")"
	updateSubscription = buildUpdate()
)

// buildUpdate sets every column from its positional parameter, bumps the
// version and matches on id ($1) and the caller's version.
func buildUpdate() string {
	var sets []string
	versionArg := 0
	for i, col := range subscriptionColumns {
		switch col {
		case "id":
			continue
		case "version":
			versionArg = i + 1
			sets = append(sets, "version = version + 1")
			continue
		}
		sets = append(sets, col+" = $"+strconv.Itoa(i+1))
	}
	return "UPDATE subscriptions SET " + strings.Join(sets, ", ") +
		" WHERE id = $1 AND version = $" + strconv.Itoa(versionArg)
}

func subscriptionArgs(s *subscription.Subscription) []any {
	return []any{
		s.ID, s.UserID, s.PlanID, string(s.BillingCycle), string(s.Status), s.Price, s.Currency,
		s.StartDate, s.TrialStart, s.TrialEnd, s.NextBillingDate,
		s.ActivatedDate, s.PausedDate, s.ResumedDate, s.SuspendedDate,
		s.PaymentFailedDate, s.CancelledDate, s.ExpiredDate, s.TrialExpiredDate,
		s.PauseReason, s.SuspensionReason, s.CancellationReason,
		s.RemoteCustomerID, s.RemoteSubscriptionID, s.RemotePriceID, s.PaymentMethodID,
		s.AutoRenew, s.SyncPending, s.LastSyncError, s.LastSyncedAt,
		s.Version, s.CreatedAt, s.UpdatedAt,
	}
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		s      subscription.Subscription
		cycle  string
		status string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &cycle, &status, &s.Price, &s.Currency,
		&s.StartDate, &s.TrialStart, &s.TrialEnd, &s.NextBillingDate,
		&s.ActivatedDate, &s.PausedDate, &s.ResumedDate, &s.SuspendedDate,
		&s.PaymentFailedDate, &s.CancelledDate, &s.ExpiredDate, &s.TrialExpiredDate,
		&s.PauseReason, &s.SuspensionReason, &s.CancellationReason,
		&s.RemoteCustomerID, &s.RemoteSubscriptionID, &s.RemotePriceID, &s.PaymentMethodID,
		&s.AutoRenew, &s.SyncPending, &s.LastSyncError, &s.LastSyncedAt,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.BillingCycle = billing.Cycle(cycle)
	s.Status = subscription.Status(status)
	return &s, nil
}

// SubscriptionStore is the PostgreSQL subscription.Store and
// subscription.PlanStore.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

var (
	_ subscription.Store     = (*SubscriptionStore)(nil)
	_ subscription.PlanStore = (*SubscriptionStore)(nil)
)

// NewSubscriptionStore panics on a nil pool.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &SubscriptionStore{pool: pool}
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, selectSubscription+" WHERE id = $1", id))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByRemoteID(ctx context.Context, remoteID string) (*subscription.Subscription, error) {
	if remoteID == "" {
		return nil, subscription.ErrNotFound
	}
	sub, err := scanSubscription(s.pool.QueryRow(ctx, selectSubscription+" WHERE remote_subscription_id = $1", remoteID))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by remote id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) List(ctx context.Context, f subscription.Filter) ([]*subscription.Subscription, error) {
	var w where
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", statuses)
	}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.AutoRenew != nil {
		w.add("auto_renew = ?", *f.AutoRenew)
	}
	if f.HasRemote != nil {
		w.add("(remote_subscription_id <> '') = ?", *f.HasRemote)
	}
	if f.SyncPending != nil {
		w.add("sync_pending = ?", *f.SyncPending)
	}
	if !f.NextBillingBefore.IsZero() {
		w.add("next_billing_date <= ?", f.NextBillingBefore)
	}
	if !f.NextBillingAfter.IsZero() {
		w.add("next_billing_date >= ?", f.NextBillingAfter)
	}
	if !f.TrialEndBefore.IsZero() {
		w.add("trial_end <= ?", f.TrialEndBefore)
	}
	if f.After != nil {
		w.add("(next_billing_date, id) > (?, ?)", f.After.NextBillingDate, f.After.ID)
	}
	query := selectSubscription + w.sql() + " ORDER BY next_billing_date, id"
	query += w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) History(ctx context.Context, subscriptionID uuid.UUID) ([]*subscription.StatusHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, from_status, to_status, reason, changed_by, changed_at
		FROM subscription_status_history
		WHERE subscription_id = $1
		ORDER BY changed_at, id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var out []*subscription.StatusHistory
	for rows.Next() {
		var (
			h    subscription.StatusHistory
			from *string
			to   string
		)
		if err := rows.Scan(&h.ID, &h.SubscriptionID, &from, &to, &h.Reason, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		if from != nil {
			st := subscription.Status(*from)
			h.FromStatus = &st
		}
		h.ToStatus = subscription.Status(to)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) Begin(ctx context.Context) (subscription.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &subscriptionTx{tx: tx}, nil
}

type subscriptionTx struct {
	tx pgx.Tx
}

func (t *subscriptionTx) Create(ctx context.Context, s *subscription.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, insertSubscription, subscriptionArgs(s)...); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(subscription.ErrInvalidInput, fmt.Errorf("subscription %s or its remote id already exists", s.ID))
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (t *subscriptionTx) Update(ctx context.Context, s *subscription.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, updateSubscription, subscriptionArgs(s)...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)", s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription: %w", err)
		}
		if !exists {
			return subscription.ErrNotFound
		}
		return subscription.ErrConcurrentModification
	}
	s.Version++
	return nil
}

func (t *subscriptionTx) AppendHistory(ctx context.Context, h *subscription.StatusHistory) error {
	var from *string
	if h.FromStatus != nil {
		v := string(*h.FromStatus)
		from = &v
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO subscription_status_history (id, subscription_id, from_status, to_status, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.SubscriptionID, from, string(h.ToStatus), h.Reason, h.ChangedBy, h.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (t *subscriptionTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if pg.IsSerializationError(err) {
			return errors.Join(subscription.ErrConcurrentModification, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *subscriptionTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !pg.IsTxClosedError(err) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
