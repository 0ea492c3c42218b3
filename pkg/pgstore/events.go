package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/idempotency"
	"github.com/dmitrymomot/subsync/pkg/pg"
)

const eventColumns = `event_id, event_type, received_at, is_success, retry_count, max_retries,
	permanently_failed, processing_duration, metadata, last_error, processed_at, lease_until, updated_at`

// EventStore is the PostgreSQL idempotency ledger.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ idempotency.Store = (*EventStore)(nil)

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &EventStore{pool: pool}
}

func scanEvent(row pgx.Row) (*idempotency.ProcessedEvent, error) {
	var (
		e        idempotency.ProcessedEvent
		duration int64
	)
	err := row.Scan(
		&e.EventID, &e.EventType, &e.ReceivedAt, &e.IsSuccess, &e.RetryCount, &e.MaxRetries,
		&e.PermanentlyFailed, &duration, &e.Metadata, &e.LastError, &e.ProcessedAt, &e.LeaseUntil, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ProcessingDuration = time.Duration(duration)
	return &e, nil
}

func (s *EventStore) InsertOrGet(ctx context.Context, e *idempotency.ProcessedEvent) (*idempotency.ProcessedEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO processed_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING `+eventColumns,
		e.EventID, e.EventType, e.ReceivedAt, e.IsSuccess, e.RetryCount, e.MaxRetries,
		e.PermanentlyFailed, int64(e.ProcessingDuration), e.Metadata, e.LastError, e.ProcessedAt, e.LeaseUntil, e.UpdatedAt,
	)
	created, err := scanEvent(row)
	if err == nil {
		return created, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, false, fmt.Errorf("insert processed event: %w", err)
	}

	existing, err := s.Get(ctx, e.EventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *EventStore) Get(ctx context.Context, eventID string) (*idempotency.ProcessedEvent, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM processed_events WHERE event_id = $1", eventID))
	if pg.IsNotFoundError(err) {
		return nil, idempotency.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processed event: %w", err)
	}
	return e, nil
}

func (s *EventStore) ClaimRetry(ctx context.Context, eventID string, retryCount int, leaseUntil, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processed_events
		SET lease_until = $3, updated_at = $4
		WHERE event_id = $1
		  AND NOT is_success
		  AND NOT permanently_failed
		  AND (max_retries = 0 OR retry_count < max_retries)
		  AND retry_count = $2
		  AND (lease_until IS NULL OR lease_until <= $4)`,
		eventID, retryCount, leaseUntil, now,
	)
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, eventID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, eventID string, duration time.Duration, metadata string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processed_events
		SET is_success = TRUE, processing_duration = $2, metadata = $3,
		    processed_at = $4, lease_until = NULL, updated_at = $4
		WHERE event_id = $1 AND NOT is_success`,
		eventID, int64(duration), metadata, at,
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already succeeded, which is fine, or missing.
		if _, err := s.Get(ctx, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventStore) MarkFailed(ctx context.Context, eventID, lastErr string, maxRetries int, at time.Time) (*idempotency.ProcessedEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanEvent(tx.QueryRow(ctx, "SELECT "+eventColumns+" FROM processed_events WHERE event_id = $1 FOR UPDATE", eventID))
	if pg.IsNotFoundError(err) {
		return nil, idempotency.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock processed event: %w", err)
	}
	if cur.IsSuccess {
		return cur, idempotency.ErrAlreadySucceeded
	}

	if !cur.PermanentlyFailed {
		cur.RetryCount++
	}
	cur.MaxRetries = maxRetries
	cur.LastError = lastErr
	cur.LeaseUntil = nil
	cur.UpdatedAt = at
	if cur.RetryCount >= cur.MaxRetries {
		cur.PermanentlyFailed = true
	}

	_, err = tx.Exec(ctx, `
		UPDATE processed_events
		SET retry_count = $2, max_retries = $3, last_error = $4, lease_until = NULL,
		    permanently_failed = $5, updated_at = $6
		WHERE event_id = $1`,
		eventID, cur.RetryCount, cur.MaxRetries, cur.LastError, cur.PermanentlyFailed, at,
	)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cur, nil
}

func (s *EventStore) ListFailed(ctx context.Context, limit int) ([]*idempotency.ProcessedEvent, error) {
	var w where
	query := "SELECT " + eventColumns + " FROM processed_events WHERE NOT is_success AND retry_count > 0 ORDER BY received_at"
	query += w.limit(limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	defer rows.Close()

	out := make([]*idempotency.ProcessedEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan processed event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
