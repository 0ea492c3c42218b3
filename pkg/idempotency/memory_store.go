package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*ProcessedEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*ProcessedEvent)}
}

func (m *MemoryStore) InsertOrGet(ctx context.Context, e *ProcessedEvent) (*ProcessedEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.events[e.EventID]; ok {
		return clone(cur), false, nil
	}
	m.events[e.EventID] = clone(e)
	return clone(e), true, nil
}

func (m *MemoryStore) Get(ctx context.Context, eventID string) (*ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(cur), nil
}

func (m *MemoryStore) ClaimRetry(ctx context.Context, eventID string, retryCount int, leaseUntil, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[eventID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.IsSuccess || cur.Exhausted() || cur.RetryCount != retryCount || cur.Leased(now) {
		return false, nil
	}
	cur.LeaseUntil = &leaseUntil
	cur.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, eventID string, duration time.Duration, metadata string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	if cur.IsSuccess {
		return nil
	}
	cur.IsSuccess = true
	cur.ProcessingDuration = duration
	cur.Metadata = metadata
	cur.ProcessedAt = &at
	cur.LeaseUntil = nil
	cur.UpdatedAt = at
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, eventID, lastErr string, maxRetries int, at time.Time) (*ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.IsSuccess {
		return clone(cur), ErrAlreadySucceeded
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
	return clone(cur), nil
}

func (m *MemoryStore) ListFailed(ctx context.Context, limit int) ([]*ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProcessedEvent, 0)
	for _, e := range m.events {
		if !e.IsSuccess && e.RetryCount > 0 {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(e *ProcessedEvent) *ProcessedEvent {
	c := *e
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		c.ProcessedAt = &t
	}
	if e.LeaseUntil != nil {
		t := *e.LeaseUntil
		c.LeaseUntil = &t
	}
	return &c
}
