package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/gateway/gatewaytest"
	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Record(_ context.Context, e audit.Event) { r.events = append(r.events, e) }

func (r *recordingAuditor) actions() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type harness struct {
	fake    *gatewaytest.Fake
	store   *subscription.MemoryStore
	engine  *reconcile.Engine
	auditor *recordingAuditor
}

func newHarness(t *testing.T, opts ...reconcile.Option) *harness {
	t.Helper()
	h := &harness{
		fake:    gatewaytest.New(),
		store:   subscription.NewMemoryStore(),
		auditor: &recordingAuditor{},
	}
	dir := reconcile.CustomerDirectoryFunc(func(_ context.Context, userID string) (reconcile.Customer, error) {
		return reconcile.Customer{Email: userID + "@example.com", Name: userID}, nil
	})
	opts = append([]reconcile.Option{
		reconcile.WithCustomerDirectory(dir),
		reconcile.WithAuditor(h.auditor),
		reconcile.WithClock(func() time.Time { return now }),
	}, opts...)
	h.engine = reconcile.NewEngine(h.fake, h.store, h.store, opts...)
	require.NoError(t, h.store.SavePlan(context.Background(), &subscription.Plan{
		ID:          "pro",
		Name:        "Pro",
		Description: "Everything",
		Price:       decimal.NewFromInt(30),
		Currency:    "USD",
		Active:      true,
	}))
	return h
}

func (h *harness) plan(t *testing.T) *subscription.Plan {
	t.Helper()
	p, err := h.store.GetPlan(context.Background(), "pro")
	require.NoError(t, err)
	return p
}

// syncedPlan synchronizes the "pro" plan and returns it.
func (h *harness) syncedPlan(t *testing.T) *subscription.Plan {
	t.Helper()
	p, err := h.engine.SynchronizePlan(context.Background(), "pro")
	require.NoError(t, err)
	return p
}

func (h *harness) seed(t *testing.T, status subscription.Status, mutate ...func(*subscription.Subscription)) *subscription.Subscription {
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
		PaymentMethodID: "pm_1",
		AutoRenew:       true,
		CreatedAt:       now.AddDate(0, -1, 0),
	}
	for _, fn := range mutate {
		fn(sub)
	}
	ctx := context.Background()
	require.NoError(t, subscription.RunInTx(ctx, h.store, func(tx subscription.Tx) error {
		return tx.Create(ctx, sub)
	}))
	return sub
}

// linked seeds a subscription with a live remote counterpart.
func (h *harness) linked(t *testing.T, status subscription.Status) *subscription.Subscription {
	t.Helper()
	plan := h.syncedPlan(t)
	remote := &subscription.Subscription{UserID: "user-1", BillingCycle: billing.Monthly, PaymentMethodID: "pm_1"}
	require.NoError(t, h.engine.CreateRemoteSubscription(context.Background(), remote, plan))
	return h.seed(t, status, func(s *subscription.Subscription) {
		s.RemoteCustomerID = remote.RemoteCustomerID
		s.RemoteSubscriptionID = remote.RemoteSubscriptionID
		s.RemotePriceID = remote.RemotePriceID
	})
}

func TestEngine_SynchronizePlan(t *testing.T) {
	t.Parallel()

	t.Run("creates product and a price per cycle", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		plan := h.syncedPlan(t)
		require.NotEmpty(t, plan.RemoteProductID)
		assert.Equal(t, now, plan.UpdatedAt)

		for _, c := range billing.Cycles {
			id := plan.PriceIDFor(c)
			require.NotEmpty(t, id, c)
			price, ok := h.fake.Price(id)
			require.True(t, ok)
			unit, count := c.Interval()
			assert.True(t, price.Amount.Equal(plan.PriceFor(c)), c)
			assert.Equal(t, unit, price.IntervalUnit)
			assert.Equal(t, count, price.IntervalCount)
			assert.Equal(t, plan.RemoteProductID, price.ProductID)
		}

		stored := h.plan(t)
		assert.Equal(t, plan.RemoteProductID, stored.RemoteProductID)
		assert.Equal(t, plan.RemoteAnnualPriceID, stored.RemoteAnnualPriceID)
		assert.Contains(t, h.auditor.actions(), "plan.synchronized")
	})

	t.Run("second run only updates the product", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		first := h.syncedPlan(t)

		plan := h.plan(t)
		plan.Name = "Pro Plus"
		require.NoError(t, h.store.SavePlan(context.Background(), plan))

		second := h.syncedPlan(t)
		assert.Equal(t, first.RemoteProductID, second.RemoteProductID)
		assert.Equal(t, first.RemoteMonthlyPriceID, second.RemoteMonthlyPriceID)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateProduct))
		assert.Equal(t, len(billing.Cycles), h.fake.Calls(gatewaytest.OpCreatePrice))

		product, ok := h.fake.Product(second.RemoteProductID)
		require.True(t, ok)
		assert.Equal(t, "Pro Plus", product.Name)
	})

	t.Run("keeps partial progress on price failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fake.Fail(gatewaytest.OpCreatePrice, errors.New("503 unavailable"))

		_, err := h.engine.SynchronizePlan(context.Background(), "pro")
		require.ErrorIs(t, err, subscription.ErrRemoteSyncFailure)

		stored := h.plan(t)
		require.NotEmpty(t, stored.RemoteProductID)
		assert.False(t, stored.HasAnyRemotePrice())

		h.fake.Fail(gatewaytest.OpCreatePrice, nil)
		plan := h.syncedPlan(t)
		assert.Equal(t, stored.RemoteProductID, plan.RemoteProductID)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateProduct))
	})

	t.Run("unsupported product update is tolerated", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.syncedPlan(t)
		h.fake.Fail(gatewaytest.OpUpdateProduct, gateway.ErrNotSupported)

		_, err := h.engine.SynchronizePlan(context.Background(), "pro")
		assert.NoError(t, err)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.engine.SynchronizePlan(context.Background(), "nope")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})
}

func TestEngine_RepricePlan(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	old := h.syncedPlan(t)
	oldMonthly := old.RemoteMonthlyPriceID

	plan, err := h.engine.RepricePlan(context.Background(), "pro", decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.True(t, plan.Price.Equal(decimal.NewFromInt(40)))
	assert.NotEqual(t, oldMonthly, plan.RemoteMonthlyPriceID)

	prev, ok := h.fake.Price(oldMonthly)
	require.True(t, ok)
	assert.False(t, prev.Active)

	next, ok := h.fake.Price(plan.RemoteMonthlyPriceID)
	require.True(t, ok)
	assert.True(t, next.Active)
	assert.True(t, next.Amount.Equal(decimal.NewFromInt(40)))

	_, err = h.engine.RepricePlan(context.Background(), "pro", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, subscription.ErrInvalidInput)
}

func TestEngine_SynchronizePlanDeletion(t *testing.T) {
	t.Parallel()

	t.Run("no remote resources is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.engine.SynchronizePlanDeletion(context.Background(), "pro"))
		assert.Zero(t, h.fake.Calls(gatewaytest.OpDeleteProduct))
	})

	t.Run("deactivates prices and deletes product", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		plan := h.syncedPlan(t)
		prices := plan.RemotePriceIDs()

		require.NoError(t, h.engine.SynchronizePlanDeletion(context.Background(), "pro"))

		_, ok := h.fake.Product(plan.RemoteProductID)
		assert.False(t, ok)
		for _, id := range prices {
			p, ok := h.fake.Price(id)
			require.True(t, ok)
			assert.False(t, p.Active)
		}
		stored := h.plan(t)
		assert.Empty(t, stored.RemoteProductID)
		assert.False(t, stored.HasAnyRemotePrice())
	})

	t.Run("already deleted product is fine", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		plan := h.syncedPlan(t)
		h.fake.RemoveProduct(plan.RemoteProductID)

		require.NoError(t, h.engine.SynchronizePlanDeletion(context.Background(), "pro"))
		assert.Empty(t, h.plan(t).RemoteProductID)
	})

	t.Run("gateway failure keeps remote references", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		plan := h.syncedPlan(t)
		h.fake.Fail(gatewaytest.OpDeleteProduct, errors.New("500"))

		err := h.engine.SynchronizePlanDeletion(context.Background(), "pro")
		require.ErrorIs(t, err, subscription.ErrRemoteSyncFailure)
		assert.Equal(t, plan.RemoteProductID, h.plan(t).RemoteProductID)
	})
}

func TestEngine_ValidatePlanSynchronization(t *testing.T) {
	t.Parallel()

	t.Run("unsynchronized plan", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		res, err := h.engine.ValidatePlanSynchronization(context.Background(), "pro")
		require.NoError(t, err)
		assert.False(t, res.Synchronized)
		assert.True(t, res.Has(reconcile.IssueMissingProduct))
		assert.True(t, res.Has(reconcile.IssueMissingPrice))
		assert.Equal(t, []string{reconcile.RecommendSynchronizePlan}, res.Recommendations)
	})

	t.Run("synchronized plan", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.syncedPlan(t)
		res, err := h.engine.ValidatePlanSynchronization(context.Background(), "pro")
		require.NoError(t, err)
		assert.True(t, res.Synchronized)
		assert.Empty(t, res.Issues)
	})

	t.Run("detects drift without changing anything", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.syncedPlan(t)
		plan := h.plan(t)
		plan.Price = decimal.NewFromInt(35)
		plan.Description = "Changed"
		require.NoError(t, h.store.SavePlan(context.Background(), plan))
		require.NoError(t, h.fake.DeactivatePrice(context.Background(), plan.RemoteAnnualPriceID))

		creates := h.fake.Calls(gatewaytest.OpCreatePrice)
		res, err := h.engine.ValidatePlanSynchronization(context.Background(), "pro")
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssuePriceMismatch))
		assert.True(t, res.Has(reconcile.IssueMetadataMismatch))
		assert.True(t, res.Has(reconcile.IssuePriceInactive))
		assert.Contains(t, res.Recommendations, reconcile.RecommendRepairPlan)
		assert.Equal(t, creates, h.fake.Calls(gatewaytest.OpCreatePrice))
		assert.Zero(t, h.fake.Calls(gatewaytest.OpUpdateProduct))
	})

	t.Run("missing remote product", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		plan := h.syncedPlan(t)
		h.fake.RemoveProduct(plan.RemoteProductID)

		res, err := h.engine.ValidatePlanSynchronization(context.Background(), "pro")
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssueProductNotFound))
	})
}

func TestEngine_RepairPlanSynchronization(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	old := h.syncedPlan(t)
	h.fake.RemoveProduct(old.RemoteProductID)

	plan, err := h.engine.RepairPlanSynchronization(context.Background(), "pro")
	require.NoError(t, err)
	assert.NotEqual(t, old.RemoteProductID, plan.RemoteProductID)
	assert.NotEqual(t, old.RemoteMonthlyPriceID, plan.RemoteMonthlyPriceID)

	res, err := h.engine.ValidatePlanSynchronization(context.Background(), "pro")
	require.NoError(t, err)
	assert.True(t, res.Synchronized, res.Issues)
	assert.Contains(t, h.auditor.actions(), "plan.repaired")
}

func TestEngine_PushStatus(t *testing.T) {
	t.Parallel()

	t.Run("mirrors pause, resume and cancel", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		ctx := context.Background()

		require.NoError(t, h.engine.PushStatus(ctx, sub, subscription.StatusPaused))
		remote, _ := h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "paused", remote.Status)

		require.NoError(t, h.engine.SynchronizeSubscriptionStatus(ctx, sub.ID, subscription.StatusActive))
		remote, _ = h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "active", remote.Status)

		require.NoError(t, h.engine.PushStatus(ctx, sub, subscription.StatusCancelled))
		remote, _ = h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "canceled", remote.Status)
	})

	t.Run("terminal statuses cancel", func(t *testing.T) {
		t.Parallel()
		for _, st := range []subscription.Status{subscription.StatusExpired, subscription.StatusTrialExpired} {
			h := newHarness(t)
			sub := h.linked(t, subscription.StatusActive)
			require.NoError(t, h.engine.PushStatus(context.Background(), sub, st), st)
			remote, _ := h.fake.Subscription(sub.RemoteSubscriptionID)
			assert.Equal(t, "canceled", remote.Status, st)
		}
	})

	t.Run("cancelling a vanished remote succeeds", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		h.fake.RemoveSubscription(sub.RemoteSubscriptionID)
		assert.NoError(t, h.engine.PushStatus(context.Background(), sub, subscription.StatusExpired))
	})

	t.Run("unsupported status is rejected before any lookup", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		err := h.engine.SynchronizeSubscriptionStatus(context.Background(), uuid.New(), subscription.StatusSuspended)
		assert.ErrorIs(t, err, subscription.ErrUnsupportedStatus)
	})

	t.Run("unlinked subscription is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.seed(t, subscription.StatusActive)
		require.NoError(t, h.engine.PushStatus(context.Background(), sub, subscription.StatusPaused))
		assert.Zero(t, h.fake.Calls(gatewaytest.OpPauseSubscription))
	})

	t.Run("gateway error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		h.fake.Fail(gatewaytest.OpPauseSubscription, errors.New("502"))

		err := h.engine.PushStatus(context.Background(), sub, subscription.StatusPaused)
		assert.ErrorIs(t, err, subscription.ErrRemoteSyncFailure)
	})
}

func TestEngine_CreateRemoteSubscription_PreviouslyLinked(t *testing.T) {
	t.Parallel()

	t.Run("live remote is reused", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusExpired)
		prev := sub.RemoteSubscriptionID

		require.NoError(t, h.engine.CreateRemoteSubscription(context.Background(), sub, h.plan(t)))
		assert.Equal(t, prev, sub.RemoteSubscriptionID)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateSubscription))
	})

	t.Run("paused remote is resumed and reused", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusCancelled)
		_, err := h.fake.PauseSubscription(context.Background(), sub.RemoteSubscriptionID)
		require.NoError(t, err)

		require.NoError(t, h.engine.CreateRemoteSubscription(context.Background(), sub, h.plan(t)))
		remote, _ := h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "active", remote.Status)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateSubscription))
	})

	t.Run("cancelled remote is replaced", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusCancelled)
		prev := sub.RemoteSubscriptionID
		_, err := h.fake.CancelSubscription(context.Background(), prev)
		require.NoError(t, err)

		require.NoError(t, h.engine.CreateRemoteSubscription(context.Background(), sub, h.plan(t)))
		assert.NotEqual(t, prev, sub.RemoteSubscriptionID)
		remote, ok := h.fake.Subscription(sub.RemoteSubscriptionID)
		require.True(t, ok)
		assert.Equal(t, "active", remote.Status)
	})

	t.Run("unreadable remote creates nothing", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusCancelled)
		prev := sub.RemoteSubscriptionID
		h.fake.Fail(gatewaytest.OpGetSubscription, gateway.ErrTimeout)

		err := h.engine.CreateRemoteSubscription(context.Background(), sub, h.plan(t))
		assert.ErrorIs(t, err, gateway.ErrTimeout)
		assert.Equal(t, prev, sub.RemoteSubscriptionID)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateSubscription))
	})
}

func TestEngine_ReactivationKeepsOneRemoteSubscription(t *testing.T) {
	t.Parallel()

	lifecycle := func(h *harness) *subscription.Service {
		return subscription.NewService(h.store, h.store,
			subscription.WithSynchronizer(h.engine),
			subscription.WithClock(func() time.Time { return now }),
		)
	}

	t.Run("expired then reactivated", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		svc := lifecycle(h)
		sub := h.linked(t, subscription.StatusActive)
		ctx := context.Background()

		_, err := svc.Expire(ctx, sub.ID, "billing period ended")
		require.NoError(t, err)
		old, _ := h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "canceled", old.Status)

		got, err := svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: sub.ID})
		require.NoError(t, err)
		assert.NotEqual(t, sub.RemoteSubscriptionID, got.RemoteSubscriptionID)
		assert.False(t, got.SyncPending)

		old, _ = h.fake.Subscription(sub.RemoteSubscriptionID)
		assert.Equal(t, "canceled", old.Status)
		current, ok := h.fake.Subscription(got.RemoteSubscriptionID)
		require.True(t, ok)
		assert.Equal(t, "active", current.Status)
	})

	t.Run("remote left live by a failed cancel is reused", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		svc := lifecycle(h)
		sub := h.linked(t, subscription.StatusActive)
		ctx := context.Background()

		h.fake.Fail(gatewaytest.OpCancelSubscription, gateway.ErrTimeout)
		expired, err := svc.Expire(ctx, sub.ID, "billing period ended")
		require.NoError(t, err)
		require.True(t, expired.SyncPending)
		h.fake.Fail(gatewaytest.OpCancelSubscription, nil)

		got, err := svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: sub.ID})
		require.NoError(t, err)
		assert.Equal(t, sub.RemoteSubscriptionID, got.RemoteSubscriptionID)
		assert.False(t, got.SyncPending)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateSubscription))
	})
}

func TestEngine_EnsureCustomer(t *testing.T) {
	t.Parallel()

	t.Run("reuses a live customer", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		id, err := h.fake.CreateCustomer(context.Background(), "a@example.com", "A")
		require.NoError(t, err)
		sub := &subscription.Subscription{UserID: "user-1", RemoteCustomerID: id}

		got, err := h.engine.EnsureCustomer(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateCustomer))
	})

	t.Run("recreates a deleted customer", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := &subscription.Subscription{UserID: "user-1", RemoteCustomerID: "cus_gone"}

		got, err := h.engine.EnsureCustomer(context.Background(), sub)
		require.NoError(t, err)
		assert.NotEqual(t, "cus_gone", got)
		assert.Equal(t, got, sub.RemoteCustomerID)
	})

	t.Run("requires a directory to create", func(t *testing.T) {
		t.Parallel()
		fake := gatewaytest.New()
		store := subscription.NewMemoryStore()
		e := reconcile.NewEngine(fake, store, store)

		_, err := e.EnsureCustomer(context.Background(), &subscription.Subscription{UserID: "user-1"})
		assert.ErrorIs(t, err, reconcile.ErrNoCustomerDirectory)
	})
}

func TestPriceIDForCycle(t *testing.T) {
	t.Parallel()
	plan := &subscription.Plan{ID: "pro", RemoteProductID: "prod_1", RemoteMonthlyPriceID: "price_m"}

	id, err := reconcile.PriceIDForCycle(plan, billing.Monthly)
	require.NoError(t, err)
	assert.Equal(t, "price_m", id)

	_, err = reconcile.PriceIDForCycle(plan, billing.Annual)
	assert.ErrorIs(t, err, subscription.ErrPriceNotConfigured)
}

func TestEngine_ValidateSubscriptionSynchronization(t *testing.T) {
	t.Parallel()

	t.Run("in sync", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Synchronized, res.Issues)
	})

	t.Run("status mismatch", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusPaused)

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssueStatusMismatch))
		assert.Equal(t, []string{reconcile.RecommendPushStatus}, res.Recommendations)
	})

	t.Run("remote subscription gone", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		h.fake.RemoveSubscription(sub.RemoteSubscriptionID)
		h.fake.RemoveCustomer(sub.RemoteCustomerID)

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssueSubscriptionMissing))
		assert.True(t, res.Has(reconcile.IssueCustomerNotFound))
		assert.Equal(t, []string{reconcile.RecommendRepairSubscription}, res.Recommendations)
	})

	t.Run("billable but never linked", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.seed(t, subscription.StatusActive, func(s *subscription.Subscription) {
			s.SyncPending = true
			s.LastSyncError = "timeout"
		})

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssueMissingRemote))
		assert.True(t, res.Has(reconcile.IssueSyncPending))
	})

	t.Run("remote error is reported, not returned", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		h.fake.Fail(gatewaytest.OpGetSubscription, errors.New("502"))

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Has(reconcile.IssueRemoteError))
	})

	t.Run("unknown subscription", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), uuid.New())
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})
}

func TestEngine_RepairSubscriptionSynchronization(t *testing.T) {
	t.Parallel()

	t.Run("recreates a missing remote subscription", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		oldRemote := sub.RemoteSubscriptionID
		h.fake.RemoveSubscription(oldRemote)

		repaired, err := h.engine.RepairSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.NotEqual(t, oldRemote, repaired.RemoteSubscriptionID)
		assert.False(t, repaired.SyncPending)
		require.NotNil(t, repaired.LastSyncedAt)
		assert.Equal(t, now, *repaired.LastSyncedAt)

		stored, err := h.store.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, repaired.RemoteSubscriptionID, stored.RemoteSubscriptionID)
		assert.Equal(t, subscription.StatusActive, stored.Status)

		res, err := h.engine.ValidateSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, res.Synchronized, res.Issues)
		assert.Contains(t, h.auditor.actions(), "subscription.repaired")
	})

	t.Run("cancels the stale remote before recreating", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusPaused)
		oldRemote := sub.RemoteSubscriptionID

		repaired, err := h.engine.RepairSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)

		stale, _ := h.fake.Subscription(oldRemote)
		assert.Equal(t, "canceled", stale.Status)
		fresh, ok := h.fake.Subscription(repaired.RemoteSubscriptionID)
		require.True(t, ok)
		assert.Equal(t, "paused", fresh.Status)
	})

	t.Run("creates the plan prices when missing", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.seed(t, subscription.StatusActive, func(s *subscription.Subscription) { s.SyncPending = true })

		repaired, err := h.engine.RepairSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, repaired.RemoteSubscriptionID)
		assert.NotEmpty(t, repaired.RemoteCustomerID)
		assert.Equal(t, h.plan(t).RemoteMonthlyPriceID, repaired.RemotePriceID)
		assert.False(t, repaired.SyncPending)
	})

	t.Run("cancelled subscription only loses its remote", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusCancelled)
		oldRemote := sub.RemoteSubscriptionID

		repaired, err := h.engine.RepairSubscriptionSynchronization(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Empty(t, repaired.RemoteSubscriptionID)
		assert.Equal(t, subscription.StatusCancelled, repaired.Status)
		remote, _ := h.fake.Subscription(oldRemote)
		assert.Equal(t, "canceled", remote.Status)
		assert.Equal(t, 1, h.fake.Calls(gatewaytest.OpCreateSubscription))
	})

	t.Run("gateway failure leaves the record untouched", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		sub := h.linked(t, subscription.StatusActive)
		h.fake.RemoveSubscription(sub.RemoteSubscriptionID)
		h.fake.Fail(gatewaytest.OpCreateSubscription, errors.New("503"))

		_, err := h.engine.RepairSubscriptionSynchronization(context.Background(), sub.ID)
		require.ErrorIs(t, err, subscription.ErrRemoteSyncFailure)

		stored, err := h.store.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.RemoteSubscriptionID, stored.RemoteSubscriptionID)
		assert.Equal(t, sub.Version, stored.Version)
	})

	t.Run("waits for the subscription lock", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewLocalLocker()
		h := newHarness(t, reconcile.WithLocker(locker))
		sub := h.linked(t, subscription.StatusActive)

		unlock, err := locker.Lock(context.Background(), subscription.LockKey(sub.ID))
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = h.engine.RepairSubscriptionSynchronization(ctx, sub.ID)
		assert.ErrorIs(t, err, subscription.ErrConcurrentModification)
	})
}

func TestNewEngine_PanicsOnNil(t *testing.T) {
	t.Parallel()
	store := subscription.NewMemoryStore()
	assert.Panics(t, func() { reconcile.NewEngine(nil, store, store) })
	assert.Panics(t, func() { reconcile.NewEngine(gatewaytest.New(), nil, store) })
}

func TestEngine_MarkSynchronized(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.seed(t, subscription.StatusActive, func(s *subscription.Subscription) {
		s.SyncPending = true
		s.LastSyncError = "timeout"
	})

	require.NoError(t, h.engine.MarkSynchronized(context.Background(), sub.ID))

	stored, err := h.store.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.SyncPending)
	assert.Empty(t, stored.LastSyncError)
	require.NotNil(t, stored.LastSyncedAt)

	require.NoError(t, h.engine.MarkSynchronized(context.Background(), sub.ID))
	again, err := h.store.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, again.Version)
}
