package idempotency

import (
	"context"
	"time"
)

// Store persists the ledger. Every method must be atomic with respect to
// concurrent calls for the same event id.
type Store interface {
	// InsertOrGet inserts e unless a row with the same EventID exists, in
	// which case that row is returned with created=false.
	InsertOrGet(ctx context.Context, e *ProcessedEvent) (row *ProcessedEvent, created bool, err error)
	Get(ctx context.Context, eventID string) (*ProcessedEvent, error)
	// ClaimRetry takes the lease for another attempt if the row is neither
	// succeeded nor permanently failed, its retry count still equals
	// retryCount and no unexpired lease is held at now.
	ClaimRetry(ctx context.Context, eventID string, retryCount int, leaseUntil, now time.Time) (bool, error)
	// MarkProcessed records success and releases the lease.
	MarkProcessed(ctx context.Context, eventID string, duration time.Duration, metadata string, at time.Time) error
	// MarkFailed increments the retry count, records lastErr, releases the
	// lease and marks the row permanently failed once maxRetries is reached.
	// A succeeded row is left untouched and ErrAlreadySucceeded returned.
	MarkFailed(ctx context.Context, eventID, lastErr string, maxRetries int, at time.Time) (*ProcessedEvent, error)
	// ListFailed returns rows that failed at least once and have not succeeded.
	ListFailed(ctx context.Context, limit int) ([]*ProcessedEvent, error)
}
