package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func proPlan() *subscription.Plan {
	return &subscription.Plan{
		ID:       "pro",
		Name:     "Pro",
		Price:    decimal.NewFromInt(30),
		Currency: "USD",
		Active:   true,
	}
}

// seed stores a subscription in the given status without going through the service.
func seed(t *testing.T, store *subscription.MemoryStore, status subscription.Status, mutate ...func(*subscription.Subscription)) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		ID:              uuid.New(),
		UserID:          "user-1",
		PlanID:          "pro",
		BillingCycle:    billing.Monthly,
		Status:          status,
		Price:           decimal.NewFromInt(30),
		Currency:        "USD",
		StartDate:       now.AddDate(0, -1, 0),
		NextBillingDate: now.AddDate(0, 0, 15),
		AutoRenew:       true,
		CreatedAt:       now.AddDate(0, -1, 0),
	}
	activated := sub.StartDate
	sub.ActivatedDate = &activated
	for _, fn := range mutate {
		fn(sub)
	}
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Create(ctx, sub))
	require.NoError(t, tx.Commit(ctx))
	return sub
}

type fakeSync struct {
	mu       sync.Mutex
	pushErr  error
	block    bool
	createFn func(sub *subscription.Subscription) error
	pushes   []subscription.Status
	prices   []string
}

func (f *fakeSync) PushStatus(ctx context.Context, sub *subscription.Subscription, status subscription.Status) error {
	f.mu.Lock()
	f.pushes = append(f.pushes, status)
	block, err := f.block, f.pushErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return errors.Join(gateway.ErrTimeout, ctx.Err())
	}
	return err
}

func (f *fakeSync) CreateRemoteSubscription(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan) error {
	if f.createFn != nil {
		return f.createFn(sub)
	}
	sub.RemoteCustomerID = "cus_1"
	sub.RemoteSubscriptionID = "sub_" + sub.ID.String()[:8]
	sub.RemotePriceID = "price_1"
	return nil
}

func (f *fakeSync) UpdateRemotePrice(ctx context.Context, sub *subscription.Subscription, priceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, priceID)
	return nil
}

func (f *fakeSync) pushed() []subscription.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]subscription.Status(nil), f.pushes...)
}

type recorder struct {
	mu     sync.Mutex
	notes  []notifications.Notification
	events []audit.Event
}

func (r *recorder) Notify(_ context.Context, n notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []notifications.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Kind, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Kind
	}
	return out
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type fakeCharger struct {
	result   *gateway.PaymentResult
	err      error
	payments []gateway.Payment
}

func (c *fakeCharger) ProcessPayment(_ context.Context, p gateway.Payment) (*gateway.PaymentResult, error) {
	c.payments = append(c.payments, p)
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &gateway.PaymentResult{ID: "pi_1", Status: gateway.PaymentSucceeded}, nil
}

// faultyStore fails the chosen step of every transaction.
type faultyStore struct {
	*subscription.MemoryStore
	failCommit  bool
	failHistory bool
}

func (s *faultyStore) Begin(ctx context.Context) (subscription.Tx, error) {
	tx, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: s}, nil
}

type faultyTx struct {
	subscription.Tx
	store *faultyStore
}

func (t *faultyTx) AppendHistory(ctx context.Context, h *subscription.StatusHistory) error {
	if t.store.failHistory {
		return errors.New("history insert failed")
	}
	return t.Tx.AppendHistory(ctx, h)
}

func (t *faultyTx) Commit(ctx context.Context) error {
	if t.store.failCommit {
		return errors.New("connection reset during commit")
	}
	return t.Tx.Commit(ctx)
}

func seedlessID() uuid.UUID { return uuid.New() }
