package notifications

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Storage persists notifications.
type Storage interface {
	Create(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)
}

// ListOptions filters List results. Zero values are ignored.
type ListOptions struct {
	Limit int
	Kinds []Kind
	Since time.Time
}

// MemoryStorage keeps notifications in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	byUser map[string][]Notification
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{byUser: make(map[string][]Notification)}
}

func (s *MemoryStorage) Create(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n)
	return nil
}

// List returns the user's notifications, newest first.
func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0, len(s.byUser[userID]))
	for _, n := range s.byUser[userID] {
		if !opts.Since.IsZero() && n.CreatedAt.Before(opts.Since) {
			continue
		}
		if len(opts.Kinds) > 0 && !containsKind(opts.Kinds, n.Kind) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}
