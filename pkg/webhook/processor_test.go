package webhook_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/idempotency"
	"github.com/dmitrymomot/subsync/pkg/subscription"
	"github.com/dmitrymomot/subsync/pkg/webhook"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type pushRecorder struct {
	mu     sync.Mutex
	pushes int
}

func (p *pushRecorder) PushStatus(context.Context, *subscription.Subscription, subscription.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes++
	return nil
}

func (p *pushRecorder) CreateRemoteSubscription(context.Context, *subscription.Subscription, *subscription.Plan) error {
	return nil
}

func (p *pushRecorder) UpdateRemotePrice(context.Context, *subscription.Subscription, string) error {
	return nil
}

type harness struct {
	store  *subscription.MemoryStore
	ledger *idempotency.MemoryStore
	sync   *pushRecorder
	proc   *webhook.Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  subscription.NewMemoryStore(),
		ledger: idempotency.NewMemoryStore(),
		sync:   &pushRecorder{},
	}
	svc := subscription.NewService(h.store, h.store,
		subscription.WithClock(clock),
		subscription.WithSynchronizer(h.sync),
	)
	guard := idempotency.NewGuard(h.ledger, idempotency.WithClock(clock))
	h.proc = webhook.NewProcessor(guard, svc, webhook.WithClock(clock))
	return h
}

func (h *harness) seed(t *testing.T, status subscription.Status, mutate ...func(*subscription.Subscription)) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		ID:                   uuid.New(),
		UserID:               "user-1",
		PlanID:               "pro",
		BillingCycle:         billing.Monthly,
		Status:               status,
		Price:                decimal.NewFromInt(30),
		Currency:             "USD",
		StartDate:            now.AddDate(0, -1, 0),
		NextBillingDate:      now.AddDate(0, 0, 10),
		RemoteSubscriptionID: "sub_" + uuid.NewString()[:8],
		AutoRenew:            true,
	}
	for _, fn := range mutate {
		fn(sub)
	}
	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Create(ctx, sub))
	require.NoError(t, tx.Commit(ctx))
	return sub
}

func (h *harness) ledgerRow(t *testing.T, id string) *idempotency.ProcessedEvent {
	t.Helper()
	row, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return row
}

func TestProcess_AppliesEventOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusActive)
	ctx := context.Background()

	ev := webhook.Event{ID: "evt_1", Type: webhook.EventSubscriptionPaused, Source: "stripe", SubjectID: sub.RemoteSubscriptionID}

	res, err := h.proc.Process(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.True(t, res.Decision.IsNewEvent)
	assert.Equal(t, subscription.StatusPaused, res.Status)

	got, err := h.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPaused, got.Status)
	assert.NotNil(t, got.LastSyncedAt)
	assert.Zero(t, h.sync.pushes, "gateway-originated change must not be pushed back")

	res, err = h.proc.Process(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Decision.ShouldProcess)
	assert.Equal(t, idempotency.ReasonAlreadyProcessed, res.Decision.Reason)

	history, err := h.store.History(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "webhook:stripe", *history[0].ChangedBy)

	row := h.ledgerRow(t, "evt_1")
	assert.True(t, row.IsSuccess)
	assert.Equal(t, "active -> paused", row.Metadata)
}

func TestProcess_AlreadyInStateCountsAsSuccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusPaused)

	res, err := h.proc.Process(context.Background(), webhook.Event{
		ID: "evt_dup", Type: webhook.EventSubscriptionPaused, SubjectID: sub.RemoteSubscriptionID,
	})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	row := h.ledgerRow(t, "evt_dup")
	assert.True(t, row.IsSuccess)
	assert.Equal(t, "already in state", row.Metadata)
}

func TestProcess_UnknownSubjectIsRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.proc.Process(context.Background(), webhook.Event{
		ID: "evt_orphan", Type: webhook.EventSubscriptionCanceled, SubjectID: "sub_missing",
	})
	require.ErrorIs(t, err, webhook.ErrUnknownSubject)

	row := h.ledgerRow(t, "evt_orphan")
	assert.False(t, row.IsSuccess)
	assert.Equal(t, 1, row.RetryCount)
	assert.False(t, row.PermanentlyFailed)

	res, err := h.proc.Process(context.Background(), webhook.Event{
		ID: "evt_orphan", Type: webhook.EventSubscriptionCanceled, SubjectID: "sub_missing",
	})
	require.Error(t, err)
	assert.Equal(t, idempotency.ReasonRetry, res.Decision.Reason)
}

func TestProcess_RejectedTransitionFailsPermanently(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusCancelled)
	ev := webhook.Event{ID: "evt_late", Type: webhook.EventSubscriptionResumed, SubjectID: sub.RemoteSubscriptionID}

	_, err := h.proc.Process(context.Background(), ev)
	require.ErrorIs(t, err, subscription.ErrInvalidTransition)
	assert.True(t, h.ledgerRow(t, "evt_late").PermanentlyFailed)

	res, err := h.proc.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.Decision.ShouldProcess)
	assert.Equal(t, idempotency.ReasonPermanentlyFailed, res.Decision.Reason)
}

func TestProcess_IgnoresUnknownTypes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.proc.Process(context.Background(), webhook.Event{ID: "evt_x", Type: "customer.updated", SubjectID: "cus_1"})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.True(t, res.Ignored)
	assert.Equal(t, "ignored", h.ledgerRow(t, "evt_x").Metadata)
}

func TestProcess_PaymentSucceededRenews(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	due := now.AddDate(0, 0, -2)
	sub := h.seed(t, subscription.StatusPaymentFailed, func(s *subscription.Subscription) {
		s.NextBillingDate = due
	})

	res, err := h.proc.Process(ctx, webhook.Event{ID: "evt_paid", Type: webhook.EventPaymentSucceeded, SubjectID: sub.RemoteSubscriptionID})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	got, err := h.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, due.AddDate(0, 1, 0), got.NextBillingDate)

	// A second charge notification for the same period changes nothing.
	res, err = h.proc.Process(ctx, webhook.Event{ID: "evt_paid_2", Type: webhook.EventPaymentSucceeded, SubjectID: sub.RemoteSubscriptionID})
	require.NoError(t, err)
	assert.Equal(t, "already in state", res.Metadata)

	again, err := h.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, got.NextBillingDate, again.NextBillingDate)
}

func TestProcess_PaymentSucceededUsesPeriodEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusActive)
	periodEnd := now.AddDate(0, 2, 0)

	_, err := h.proc.Process(context.Background(), webhook.Event{
		ID:        "evt_period",
		Type:      webhook.EventPaymentSucceeded,
		SubjectID: sub.RemoteSubscriptionID,
		Data:      map[string]string{"period_end": periodEnd.Format(time.RFC3339)},
	})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, periodEnd, got.NextBillingDate)
}

func TestProcess_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusActive)
	ev := webhook.Event{ID: "evt_race", Type: webhook.EventSubscriptionCanceled, SubjectID: sub.RemoteSubscriptionID}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.proc.Process(context.Background(), ev)
			assert.NoError(t, err)
			if res.Processed {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, processed)
	history, err := h.store.History(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestNewProcessor_Panics(t *testing.T) {
	t.Parallel()
	guard := idempotency.NewGuard(idempotency.NewMemoryStore())
	assert.Panics(t, func() { webhook.NewProcessor(nil, nil) })
	assert.Panics(t, func() { webhook.NewProcessor(guard, nil) })
}
