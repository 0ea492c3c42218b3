package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

func newService(t *testing.T, opts ...subscription.ServiceOption) (*subscription.Service, *subscription.MemoryStore) {
	t.Helper()
	store := subscription.NewMemoryStore()
	require.NoError(t, store.SavePlan(context.Background(), proPlan()))
	opts = append([]subscription.ServiceOption{subscription.WithClock(fixedClock)}, opts...)
	return subscription.NewService(store, store, opts...), store
}

func TestRequestTransition_Closure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, from := range subscription.Statuses {
		for _, to := range subscription.Statuses {
			if from == to || subscription.CanTransition(from, to) && from != subscription.StatusExpired {
				continue
			}
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				t.Parallel()
				svc, store := newService(t)
				sub := seed(t, store, from)

				_, err := svc.RequestTransition(ctx, subscription.TransitionRequest{SubscriptionID: sub.ID, Target: to})
				require.ErrorIs(t, err, subscription.ErrInvalidTransition)

				got, err := store.Get(ctx, sub.ID)
				require.NoError(t, err)
				assert.Equal(t, from, got.Status)
				assert.Equal(t, sub.Version, got.Version)

				history, err := store.History(ctx, sub.ID)
				require.NoError(t, err)
				assert.Empty(t, history)
			})
		}
	}
}

func TestRequestTransition_AllowedPairs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, from := range subscription.Statuses {
		for _, to := range subscription.Statuses {
			if !subscription.CanTransition(from, to) || from == subscription.StatusExpired {
				continue
			}
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				t.Parallel()
				svc, store := newService(t)
				sub := seed(t, store, from)

				got, err := svc.RequestTransition(ctx, subscription.TransitionRequest{
					SubscriptionID: sub.ID, Target: to, Reason: "test", ActorID: "admin",
				})
				require.NoError(t, err)
				assert.Equal(t, to, got.Status)
				assert.Equal(t, sub.Version+1, got.Version)

				history, err := store.History(ctx, sub.ID)
				require.NoError(t, err)
				require.Len(t, history, 1)
				require.NotNil(t, history[0].FromStatus)
				assert.Equal(t, from, *history[0].FromStatus)
				assert.Equal(t, to, history[0].ToStatus)
				require.NotNil(t, history[0].ChangedBy)
				assert.Equal(t, "admin", *history[0].ChangedBy)
			})
		}
	}
}

func TestRequestTransition_SideEffects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	sub := seed(t, store, subscription.StatusActive)

	paused, err := svc.Pause(ctx, sub.ID, "vacation", "user-1")
	require.NoError(t, err)
	require.NotNil(t, paused.PausedDate)
	assert.Equal(t, now, *paused.PausedDate)
	assert.Equal(t, "vacation", paused.PauseReason)

	resumed, err := svc.Resume(ctx, sub.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, resumed.ResumedDate)
	assert.Empty(t, resumed.PauseReason)
	assert.NotNil(t, resumed.PausedDate, "history timestamps are kept")

	suspended, err := svc.Suspend(ctx, sub.ID, "fraud review", "admin")
	require.NoError(t, err)
	assert.Equal(t, "fraud review", suspended.SuspensionReason)
	require.NotNil(t, suspended.SuspendedDate)

	cancelled, err := svc.Cancel(ctx, sub.ID, "too expensive", "user-1")
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledDate)
	assert.Equal(t, "too expensive", cancelled.CancellationReason)
	assert.Empty(t, cancelled.SuspensionReason)
	assert.False(t, cancelled.AutoRenew)

	history, err := svc.History(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestRequestTransition_AlreadyInState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	sub := seed(t, store, subscription.StatusPaused)

	_, err := svc.Pause(ctx, sub.ID, "again", "")
	require.ErrorIs(t, err, subscription.ErrAlreadyInState)

	history, _ := store.History(ctx, sub.ID)
	assert.Empty(t, history)
}

func TestRequestTransition_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Activate(ctx, seedlessID(), "")
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	_, err = svc.RequestTransition(ctx, subscription.TransitionRequest{SubscriptionID: seedlessID(), Target: "bogus"})
	assert.ErrorIs(t, err, subscription.ErrUnsupportedStatus)
}

func TestRequestTransition_Atomicity(t *testing.T) {
	t.Parallel()

	for name, store := range map[string]*faultyStore{
		"commit fails":  {MemoryStore: subscription.NewMemoryStore(), failCommit: true},
		"history fails": {MemoryStore: subscription.NewMemoryStore(), failHistory: true},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			sub := seed(t, store.MemoryStore, subscription.StatusActive)
			svc := subscription.NewService(store, store.MemoryStore, subscription.WithClock(fixedClock))

			_, err := svc.Cancel(ctx, sub.ID, "bye", "")
			require.ErrorIs(t, err, subscription.ErrPersistenceFailure)
			assert.Equal(t, 500, subscription.ResultFromError(err).Code)

			got, err := store.Get(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, subscription.StatusActive, got.Status)
			assert.Nil(t, got.CancelledDate)

			history, _ := store.History(ctx, sub.ID)
			assert.Empty(t, history)
		})
	}
}

func TestRequestTransition_LocalFirstOnGatewayTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncer := &fakeSync{block: true}
	svc, store := newService(t,
		subscription.WithSynchronizer(syncer),
		subscription.WithSyncTimeout(20*time.Millisecond),
	)
	sub := seed(t, store, subscription.StatusActive, func(s *subscription.Subscription) {
		s.RemoteSubscriptionID = "sub_remote"
	})

	start := time.Now()
	got, err := svc.Pause(ctx, sub.ID, "vacation", "user-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, subscription.StatusPaused, got.Status)
	assert.True(t, got.SyncPending)
	assert.Contains(t, got.LastSyncError, "timed out")

	stored, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPaused, stored.Status)
	assert.True(t, stored.SyncPending)

	history, _ := store.History(ctx, sub.ID)
	require.Len(t, history, 1)
	assert.Equal(t, subscription.StatusPaused, history[0].ToStatus)
	assert.Equal(t, []subscription.Status{subscription.StatusPaused}, syncer.pushed())
}

func TestRequestTransition_PushesMirroredStatuses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncer := &fakeSync{}
	svc, store := newService(t, subscription.WithSynchronizer(syncer))
	sub := seed(t, store, subscription.StatusActive, func(s *subscription.Subscription) {
		s.RemoteSubscriptionID = "sub_remote"
		s.SyncPending = true
	})

	got, err := svc.Pause(ctx, sub.ID, "", "")
	require.NoError(t, err)
	assert.False(t, got.SyncPending)
	require.NotNil(t, got.LastSyncedAt)

	_, err = svc.Resume(ctx, sub.ID, "")
	require.NoError(t, err)
	_, err = svc.MarkPaymentFailed(ctx, sub.ID, "card expired")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, sub.ID, "", "")
	require.NoError(t, err)

	assert.Equal(t, []subscription.Status{
		subscription.StatusPaused, subscription.StatusActive, subscription.StatusCancelled,
	}, syncer.pushed())
}

func TestRequestTransition_PushesTerminalStatuses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncer := &fakeSync{}
	svc, store := newService(t, subscription.WithSynchronizer(syncer))
	linked := func(s *subscription.Subscription) { s.RemoteSubscriptionID = "sub_" + s.ID.String()[:8] }

	active := seed(t, store, subscription.StatusActive, linked)
	_, err := svc.Expire(ctx, active.ID, "billing period ended")
	require.NoError(t, err)

	trial := seed(t, store, subscription.StatusTrialActive, linked)
	_, err = svc.ExpireTrial(ctx, trial.ID)
	require.NoError(t, err)

	assert.Equal(t, []subscription.Status{
		subscription.StatusExpired, subscription.StatusTrialExpired,
	}, syncer.pushed())
}

func TestRequestTransition_SerializedPerSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	sub := seed(t, store, subscription.StatusActive)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Pause(ctx, sub.ID, "", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, subscription.ErrAlreadyInState)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	history, _ := store.History(ctx, sub.ID)
	assert.Len(t, history, 1)
}

func TestRequestTransition_NotifiesAndAudits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &recorder{}
	svc, store := newService(t, subscription.WithNotifier(rec), subscription.WithAuditor(rec))
	sub := seed(t, store, subscription.StatusActive)

	_, err := svc.Pause(ctx, sub.ID, "vacation", "user-1")
	require.NoError(t, err)
	_, err = svc.Resume(ctx, sub.ID, "user-1")
	require.NoError(t, err)
	_, err = svc.Resume(ctx, sub.ID, "user-1")
	require.Error(t, err)

	assert.Equal(t, []notifications.Kind{notifications.KindPaused, notifications.KindResumed}, rec.kinds())
	assert.Equal(t, []string{"subscription.paused", "subscription.active", "subscription.transition"}, rec.actions())
}

func TestReactivate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &recorder{}
	syncer := &fakeSync{}
	svc, store := newService(t, subscription.WithSynchronizer(syncer), subscription.WithAuditor(rec), subscription.WithNotifier(rec))
	sub := seed(t, store, subscription.StatusCancelled, func(s *subscription.Subscription) {
		s.AutoRenew = false
		s.RemoteCustomerID = "cus_1"
		s.RemoteSubscriptionID = "sub_old"
		s.CancellationReason = "moved"
	})

	_, err := svc.Activate(ctx, sub.ID, "")
	require.ErrorIs(t, err, subscription.ErrInvalidTransition)

	got, err := svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: sub.ID, Reason: "came back", ActorID: "support-7"})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.True(t, got.AutoRenew)
	assert.Empty(t, got.CancellationReason)
	assert.Equal(t, billing.NextBillingDate(now, billing.Monthly), got.NextBillingDate)
	assert.NotEqual(t, "sub_old", got.RemoteSubscriptionID)
	assert.False(t, got.SyncPending)
	require.NotNil(t, got.ResumedDate)

	history, err := store.History(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, subscription.StatusCancelled, *history[0].FromStatus)
	assert.Equal(t, subscription.StatusActive, history[0].ToStatus)
	assert.Equal(t, "reactivation: came back", history[0].Reason)

	assert.Contains(t, rec.actions(), "subscription.reactivated")
	assert.Contains(t, rec.kinds(), notifications.KindReactivated)
}

func TestReactivate_Boundaries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)

	expired := seed(t, store, subscription.StatusExpired)
	_, err := svc.Activate(ctx, expired.ID, "")
	require.ErrorIs(t, err, subscription.ErrInvalidTransition, "expired leaves only through reactivation")
	got, err := svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: expired.ID})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)

	paused := seed(t, store, subscription.StatusPaused)
	_, err = svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: paused.ID})
	require.ErrorIs(t, err, subscription.ErrNotReactivatable)
	assert.Equal(t, 400, subscription.ResultFromError(err).Code)

	active := seed(t, store, subscription.StatusActive)
	_, err = svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: active.ID})
	require.ErrorIs(t, err, subscription.ErrAlreadyInState)
}

func TestReactivate_RemoteFailureFlagsDrift(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncer := &fakeSync{createFn: func(*subscription.Subscription) error { return gateway.ErrCircuitOpen }}
	svc, store := newService(t, subscription.WithSynchronizer(syncer))
	sub := seed(t, store, subscription.StatusCancelled, func(s *subscription.Subscription) {
		s.RemoteSubscriptionID = "sub_old"
	})

	got, err := svc.Reactivate(ctx, subscription.ReactivateRequest{SubscriptionID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.True(t, got.SyncPending)
	assert.Equal(t, "sub_old", got.RemoteSubscriptionID)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("active with remote", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		svc, store := newService(t, subscription.WithSynchronizer(&fakeSync{}), subscription.WithNotifier(rec))

		sub, err := svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "pro", Cycle: billing.Annual, PaymentMethodID: "pm_1"})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.True(t, decimal.NewFromInt(360).Equal(sub.Price))
		assert.Equal(t, now.AddDate(1, 0, 0), sub.NextBillingDate)
		assert.True(t, sub.HasRemote())
		assert.True(t, sub.AutoRenew)

		history, err := store.History(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Nil(t, history[0].FromStatus)
		assert.Equal(t, []notifications.Kind{notifications.KindCreated}, rec.kinds())
	})

	t.Run("trial", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		trial := proPlan()
		trial.ID = "trial"
		trial.TrialAllowed = true
		trial.TrialDays = 14
		require.NoError(t, store.SavePlan(ctx, trial))

		sub, err := svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "trial"})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrialActive, sub.Status)
		require.NotNil(t, sub.TrialEnd)
		assert.Equal(t, now.AddDate(0, 0, 14), *sub.TrialEnd)
		assert.Equal(t, *sub.TrialEnd, sub.NextBillingDate)
		assert.True(t, sub.InTrial(now))
	})

	t.Run("pending without payment method", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		sub, err := svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "pro"})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, sub.Status)
		assert.Nil(t, sub.ActivatedDate)
	})

	t.Run("remote failure stores nothing", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("gateway down")
		svc, store := newService(t, subscription.WithSynchronizer(&fakeSync{createFn: func(*subscription.Subscription) error { return boom }}))

		_, err := svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "pro", PaymentMethodID: "pm_1"})
		require.ErrorIs(t, err, subscription.ErrRemoteSyncFailure)
		require.ErrorIs(t, err, boom)

		subs, _ := store.List(ctx, subscription.Filter{UserID: "u1"})
		assert.Empty(t, subs)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.Create(ctx, subscription.CreateRequest{PlanID: "pro"})
		assert.ErrorIs(t, err, subscription.ErrInvalidInput)
		_, err = svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "missing"})
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
		_, err = svc.Create(ctx, subscription.CreateRequest{UserID: "u1", PlanID: "pro", Cycle: "weekly"})
		assert.ErrorIs(t, err, subscription.ErrInvalidInput)
	})
}

func TestChangePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	business := &subscription.Plan{
		ID: "business", Name: "Business", Price: decimal.NewFromInt(60), Currency: "USD", Active: true,
		RemoteProductID: "prod_1", RemoteMonthlyPriceID: "price_biz",
	}

	t.Run("upgrade charges proration", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		syncer := &fakeSync{}
		svc, store := newService(t, subscription.WithCharger(charger), subscription.WithSynchronizer(syncer))
		require.NoError(t, store.SavePlan(ctx, business))
		sub := seed(t, store, subscription.StatusActive, func(s *subscription.Subscription) {
			s.PaymentMethodID = "pm_1"
			s.RemoteSubscriptionID = "sub_1"
		})

		res, err := svc.ChangePlan(ctx, subscription.ChangePlanRequest{SubscriptionID: sub.ID, NewPlanID: "business"})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(15).Equal(res.Proration.Amount), res.Proration.Amount.String())
		assert.Equal(t, 15, res.Proration.DaysRemaining)
		assert.Equal(t, "pi_1", res.PaymentID)
		assert.Equal(t, "business", res.Subscription.PlanID)
		assert.True(t, decimal.NewFromInt(60).Equal(res.Subscription.Price))
		assert.Equal(t, "price_biz", res.Subscription.RemotePriceID)

		require.Len(t, charger.payments, 1)
		assert.Equal(t, "pm_1", charger.payments[0].PaymentMethodID)
		assert.Equal(t, []string{"price_biz"}, syncer.prices)
	})

	t.Run("declined payment aborts", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{result: &gateway.PaymentResult{Status: gateway.PaymentFailed, ErrorMessage: "insufficient funds"}}
		svc, store := newService(t, subscription.WithCharger(charger))
		require.NoError(t, store.SavePlan(ctx, business))
		sub := seed(t, store, subscription.StatusActive, func(s *subscription.Subscription) { s.PaymentMethodID = "pm_1" })

		_, err := svc.ChangePlan(ctx, subscription.ChangePlanRequest{SubscriptionID: sub.ID, NewPlanID: "business"})
		require.ErrorIs(t, err, subscription.ErrPaymentFailed)
		assert.Equal(t, 402, subscription.ResultFromError(err).Code)

		got, _ := store.Get(ctx, sub.ID)
		assert.Equal(t, "pro", got.PlanID)
	})

	t.Run("downgrade is a credit without charge", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		svc, store := newService(t, subscription.WithCharger(charger))
		require.NoError(t, store.SavePlan(ctx, business))
		sub := seed(t, store, subscription.StatusActive, func(s *subscription.Subscription) {
			s.PlanID = "business"
			s.Price = decimal.NewFromInt(60)
		})

		res, err := svc.ChangePlan(ctx, subscription.ChangePlanRequest{SubscriptionID: sub.ID, NewPlanID: "pro"})
		require.NoError(t, err)
		assert.True(t, res.Proration.IsCredit())
		assert.Empty(t, charger.payments)
	})

	t.Run("same plan", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		sub := seed(t, store, subscription.StatusActive)
		_, err := svc.ChangePlan(ctx, subscription.ChangePlanRequest{SubscriptionID: sub.ID, NewPlanID: "pro"})
		assert.ErrorIs(t, err, subscription.ErrAlreadyInState)
	})

	t.Run("not active", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		require.NoError(t, store.SavePlan(ctx, business))
		sub := seed(t, store, subscription.StatusPaused)
		_, err := svc.ChangePlan(ctx, subscription.ChangePlanRequest{SubscriptionID: sub.ID, NewPlanID: "business"})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})
}

func TestRenew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("active keeps status", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		sub := seed(t, store, subscription.StatusActive)
		next := sub.NextBillingDate.AddDate(0, 1, 0)

		got, err := svc.Renew(ctx, subscription.RenewRequest{SubscriptionID: sub.ID, NextBillingDate: next})
		require.NoError(t, err)
		assert.Equal(t, next, got.NextBillingDate)
		assert.Equal(t, subscription.StatusActive, got.Status)
		history, _ := store.History(ctx, sub.ID)
		assert.Empty(t, history)
	})

	t.Run("payment failed returns to active", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		sub := seed(t, store, subscription.StatusPaymentFailed)

		got, err := svc.Renew(ctx, subscription.RenewRequest{SubscriptionID: sub.ID, NextBillingDate: sub.NextBillingDate.AddDate(0, 1, 0)})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		history, _ := store.History(ctx, sub.ID)
		require.Len(t, history, 1)
		assert.Equal(t, subscription.StatusPaymentFailed, *history[0].FromStatus)
	})

	t.Run("date must move forward", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		sub := seed(t, store, subscription.StatusActive)
		_, err := svc.Renew(ctx, subscription.RenewRequest{SubscriptionID: sub.ID, NextBillingDate: sub.NextBillingDate})
		assert.ErrorIs(t, err, subscription.ErrInvalidInput)
	})

	t.Run("cancelled cannot renew", func(t *testing.T) {
		t.Parallel()
		svc, store := newService(t)
		sub := seed(t, store, subscription.StatusCancelled)
		_, err := svc.Renew(ctx, subscription.RenewRequest{SubscriptionID: sub.ID, NextBillingDate: sub.NextBillingDate.AddDate(0, 1, 0)})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})
}

func TestNewService_Panics(t *testing.T) {
	t.Parallel()
	store := subscription.NewMemoryStore()
	assert.Panics(t, func() { subscription.NewService(nil, store) })
	assert.Panics(t, func() { subscription.NewService(store, nil) })
}
