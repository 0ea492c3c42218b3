package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/audit"
)

const insertAudit = `
	INSERT INTO audit_events (id, actor_id, action, resource, resource_id, result, error, request_id, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// AuditStore persists audit events to audit_events.
type AuditStore struct {
	pool *pgxpool.Pool
}

var (
	_ audit.Storage     = (*AuditStore)(nil)
	_ audit.BatchWriter = (*AuditStore)(nil)
	_ audit.Reader      = (*AuditStore)(nil)
)

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &AuditStore{pool: pool}
}

func auditArgs(e audit.Event) []any {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var metadata map[string]any
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	return []any{e.ID, e.ActorID, e.Action, e.Resource, e.ResourceID, string(e.Result), e.Error, e.RequestID, metadata, e.CreatedAt}
}

func (s *AuditStore) Store(ctx context.Context, event audit.Event) error {
	if _, err := s.pool.Exec(ctx, insertAudit, auditArgs(event)...); err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	return nil
}

// StoreBatch writes all events in one transaction.
func (s *AuditStore) StoreBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			batch.Queue(insertAudit, auditArgs(e)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store audit batch: %w", err)
		}
		return nil
	})
}

// Find returns matching events ordered by creation time.
func (s *AuditStore) Find(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var w where
	if f.ActorID != "" {
		w.add("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		w.add("action = ?", f.Action)
	}
	if f.Resource != "" {
		w.add("resource = ?", f.Resource)
	}
	if f.ResourceID != "" {
		w.add("resource_id = ?", f.ResourceID)
	}
	if f.Result != "" {
		w.add("result = ?", string(f.Result))
	}
	if !f.Since.IsZero() {
		w.add("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		w.add("created_at < ?", f.Until)
	}
	query := `SELECT id, actor_id, action, resource, resource_id, result, error, request_id, metadata, created_at
		FROM audit_events` + w.sql() + " ORDER BY created_at, id"
	query += w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e      audit.Event
			result string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &result,
			&e.Error, &e.RequestID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Result = audit.Result(result)
		out = append(out, e)
	}
	return out, rows.Err()
}
