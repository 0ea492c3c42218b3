package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var errTxDone = errors.New("transaction already finished")

// MemoryStore is an in-process Store and PlanStore for tests and local runs.
// Transactions stage their writes and apply them under one lock on Commit.
type MemoryStore struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	history map[uuid.UUID][]*StatusHistory
	plans   map[string]*Plan
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:    make(map[uuid.UUID]*Subscription),
		history: make(map[uuid.UUID][]*StatusHistory),
		plans:   make(map[string]*Plan),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetByRemoteID(ctx context.Context, remoteSubscriptionID string) (*Subscription, error) {
	if remoteSubscriptionID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.RemoteSubscriptionID == remoteSubscriptionID {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Subscription, 0)
	for _, s := range m.subs {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextBillingDate.Equal(out[j].NextBillingDate) {
			return out[i].NextBillingDate.Before(out[j].NextBillingDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) History(ctx context.Context, subscriptionID uuid.UUID) ([]*StatusHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.history[subscriptionID]
	out := make([]*StatusHistory, len(rows))
	for i, h := range rows {
		c := *h
		out[i] = &c
	}
	return out, nil
}

func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{store: m}, nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	c := *p
	return &c, nil
}

func (m *MemoryStore) ListPlans(ctx context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Plan, 0, len(m.plans))
	for _, p := range m.plans {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SavePlan(ctx context.Context, p *Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.plans[p.ID] = &c
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	creates []*Subscription
	updates []*Subscription
	history []*StatusHistory
	done    bool
}

func (t *memoryTx) Create(ctx context.Context, s *Subscription) error {
	if t.done {
		return errTxDone
	}
	if err := s.Validate(); err != nil {
		return err
	}
	t.creates = append(t.creates, s.Clone())
	return nil
}

func (t *memoryTx) Update(ctx context.Context, s *Subscription) error {
	if t.done {
		return errTxDone
	}
	if err := s.Validate(); err != nil {
		return err
	}
	t.store.mu.RLock()
	cur, ok := t.store.subs[s.ID]
	t.store.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if cur.Version != s.Version {
		return ErrConcurrentModification
	}
	staged := s.Clone()
	staged.Version++
	t.updates = append(t.updates, staged)
	s.Version = staged.Version
	return nil
}

func (t *memoryTx) AppendHistory(ctx context.Context, h *StatusHistory) error {
	if t.done {
		return errTxDone
	}
	c := *h
	t.history = append(t.history, &c)
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range t.creates {
		if _, exists := m.subs[s.ID]; exists {
			return errors.New("subscription already exists")
		}
	}
	for _, s := range t.updates {
		cur, ok := m.subs[s.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Version != s.Version-1 {
			return ErrConcurrentModification
		}
	}

	for _, s := range t.creates {
		m.subs[s.ID] = s
	}
	for _, s := range t.updates {
		m.subs[s.ID] = s
	}
	for _, h := range t.history {
		m.history[h.SubscriptionID] = append(m.history[h.SubscriptionID], h)
	}
	t.done = true
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	t.creates, t.updates, t.history = nil, nil, nil
	return nil
}
