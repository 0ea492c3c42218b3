package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Storage persists single events.
type Storage interface {
	Store(ctx context.Context, event Event) error
}

// BatchWriter persists events in bulk. A batch must succeed or fail as a
// whole.
type BatchWriter interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// Filter narrows Find results. Zero values match everything.
type Filter struct {
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	Result     Result
	Since      time.Time
	Until      time.Time
	Limit      int
}

func (f Filter) Match(e Event) bool {
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID,
		f.Action != "" && e.Action != f.Action,
		f.Resource != "" && e.Resource != f.Resource,
		f.ResourceID != "" && e.ResourceID != f.ResourceID,
		f.Result != "" && e.Result != f.Result,
		!f.Since.IsZero() && e.CreatedAt.Before(f.Since),
		!f.Until.IsZero() && !e.CreatedAt.Before(f.Until):
		return false
	}
	return true
}

// Reader queries stored events.
type Reader interface {
	Find(ctx context.Context, filter Filter) ([]Event, error)
}

// MemoryStorage is an in-process Storage, BatchWriter and Reader.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Store(ctx context.Context, event Event) error {
	return m.StoreBatch(ctx, []Event{event})
}

func (m *MemoryStorage) StoreBatch(ctx context.Context, events []Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Find returns matching events ordered by creation time.
func (m *MemoryStorage) Find(ctx context.Context, filter Filter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range m.events {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
