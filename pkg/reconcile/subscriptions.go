package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// SynchronizeSubscriptionStatus mirrors status onto the remote
// subscription: active resumes, paused pauses, and cancelled, expired or
// trial_expired cancel.
func (e *Engine) SynchronizeSubscriptionStatus(ctx context.Context, id uuid.UUID, status subscription.Status) error {
	if _, err := remoteOp(status); err != nil {
		return err
	}
	sub, err := e.subs.Get(ctx, id)
	if err != nil {
		return err
	}
	return e.PushStatus(ctx, sub, status)
}

// PushStatus applies status to sub's remote subscription. A subscription
// without a remote link has nothing to mirror.
func (e *Engine) PushStatus(ctx context.Context, sub *subscription.Subscription, status subscription.Status) error {
	op, err := remoteOp(status)
	if err != nil {
		return err
	}
	if !sub.HasRemote() {
		return nil
	}

	var ok bool
	switch op {
	case "resume":
		ok, err = e.gw.ResumeSubscription(ctx, sub.RemoteSubscriptionID)
	case "pause":
		ok, err = e.gw.PauseSubscription(ctx, sub.RemoteSubscriptionID)
	case "cancel":
		ok, err = e.gw.CancelSubscription(ctx, sub.RemoteSubscriptionID)
		if errors.Is(err, gateway.ErrNotFound) {
			return nil
		}
	}
	if err != nil {
		return errors.Join(subscription.ErrRemoteSyncFailure, fmt.Errorf("%s subscription: %w", op, err))
	}
	if !ok {
		return errors.Join(subscription.ErrRemoteSyncFailure, rejected(op+" subscription"))
	}
	return nil
}

func remoteOp(status subscription.Status) (string, error) {
	switch status {
	case subscription.StatusActive:
		return "resume", nil
	case subscription.StatusPaused:
		return "pause", nil
	case subscription.StatusCancelled, subscription.StatusExpired, subscription.StatusTrialExpired:
		return "cancel", nil
	}
	return "", fmt.Errorf("%w: %s has no remote counterpart", subscription.ErrUnsupportedStatus, status)
}

// EnsureCustomer returns sub's remote customer id, creating the customer
// when it is missing or was deleted remotely. sub is updated, not saved.
func (e *Engine) EnsureCustomer(ctx context.Context, sub *subscription.Subscription) (string, error) {
	if sub.RemoteCustomerID != "" {
		c, err := e.gw.GetCustomer(ctx, sub.RemoteCustomerID)
		switch {
		case err == nil && !c.Deleted:
			return c.ID, nil
		case err != nil && !errors.Is(err, gateway.ErrNotFound):
			return "", fmt.Errorf("get customer: %w", err)
		}
	}
	if e.customers == nil {
		return "", ErrNoCustomerDirectory
	}
	who, err := e.customers.LookupCustomer(ctx, sub.UserID)
	if err != nil {
		return "", fmt.Errorf("lookup customer %s: %w", sub.UserID, err)
	}
	id, err := e.gw.CreateCustomer(ctx, who.Email, who.Name)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	sub.RemoteCustomerID = id
	return id, nil
}

// PriceIDForCycle returns the plan's remote price for cycle.
func PriceIDForCycle(plan *subscription.Plan, cycle billing.Cycle) (string, error) {
	if id := plan.PriceIDFor(cycle); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: plan %s, cycle %s", subscription.ErrPriceNotConfigured, plan.ID, cycle)
}

// CreateRemoteSubscription creates a remote subscription for sub on the
// plan's price for sub's cycle and stores the remote ids on sub. sub is
// not saved.
//
// When sub is still linked, its remote subscription is reused if it bills
// (resumed first when paused). Any other linked remote is cancelled
// before the new one is created.
func (e *Engine) CreateRemoteSubscription(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan) error {
	priceID, err := PriceIDForCycle(plan, sub.BillingCycle)
	if err != nil {
		return err
	}
	if sub.HasRemote() {
		reused, err := e.reuseRemote(ctx, sub.RemoteSubscriptionID)
		if err != nil {
			return err
		}
		if reused {
			return nil
		}
	}
	customerID, err := e.EnsureCustomer(ctx, sub)
	if err != nil {
		return err
	}
	id, err := e.gw.CreateSubscription(ctx, customerID, priceID, sub.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	sub.RemoteSubscriptionID = id
	sub.RemotePriceID = priceID
	return nil
}

// reuseRemote reports whether remoteID can keep billing for its local
// subscription. A remote that cannot is cancelled unless already gone.
func (e *Engine) reuseRemote(ctx context.Context, remoteID string) (bool, error) {
	remote, err := e.gw.GetSubscription(ctx, remoteID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get subscription: %w", err)
	}

	switch remote.Status {
	case "active", "trialing", "past_due":
		return true, nil
	case "paused":
		ok, err := e.gw.ResumeSubscription(ctx, remoteID)
		if err != nil {
			return false, fmt.Errorf("resume subscription: %w", err)
		}
		if !ok {
			return false, rejected("resume subscription")
		}
		return true, nil
	case "canceled":
		return false, nil
	}
	if _, err := e.gw.CancelSubscription(ctx, remoteID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	return false, nil
}

// UpdateRemotePrice moves sub's remote subscription to priceID.
func (e *Engine) UpdateRemotePrice(ctx context.Context, sub *subscription.Subscription, priceID string) error {
	if !sub.HasRemote() {
		return nil
	}
	ok, err := e.gw.UpdateSubscription(ctx, sub.RemoteSubscriptionID, priceID)
	if err != nil {
		return fmt.Errorf("update subscription price: %w", err)
	}
	if !ok {
		return rejected("update subscription price")
	}
	sub.RemotePriceID = priceID
	return nil
}

// expectedRemote lists the remote statuses consistent with a local one.
// nil means any remote state is acceptable.
func expectedRemote(s subscription.Status) []string {
	switch s {
	case subscription.StatusActive:
		return []string{"active"}
	case subscription.StatusTrialActive:
		return []string{"trialing", "active"}
	case subscription.StatusPaused:
		return []string{"paused"}
	case subscription.StatusPaymentFailed:
		return []string{"past_due", "unpaid", "active"}
	case subscription.StatusCancelled, subscription.StatusExpired, subscription.StatusTrialExpired:
		return []string{"canceled"}
	}
	return nil
}

// remoteWorthy reports whether a subscription in s should have a live
// remote counterpart.
func remoteWorthy(s subscription.Status) bool {
	switch s {
	case subscription.StatusActive, subscription.StatusTrialActive, subscription.StatusPaused, subscription.StatusPaymentFailed:
		return true
	}
	return false
}

// ValidateSubscriptionSynchronization compares a subscription with its
// remote customer and subscription. It never changes anything.
func (e *Engine) ValidateSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*ValidationResult, error) {
	sub, err := e.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &ValidationResult{}

	if sub.SyncPending {
		res.add(IssueSyncPending, fmt.Sprintf("last gateway sync failed: %s", sub.LastSyncError), RecommendRepairSubscription)
	}

	if sub.RemoteCustomerID != "" {
		c, err := e.gw.GetCustomer(ctx, sub.RemoteCustomerID)
		switch {
		case errors.Is(err, gateway.ErrNotFound) || (err == nil && c.Deleted):
			res.add(IssueCustomerNotFound, fmt.Sprintf("remote customer %s does not exist", sub.RemoteCustomerID), RecommendRepairSubscription)
		case err != nil:
			res.add(IssueRemoteError, fmt.Sprintf("get customer: %v", err), "")
		}
	}

	if !sub.HasRemote() {
		if remoteWorthy(sub.Status) && (sub.RemoteCustomerID != "" || sub.PaymentMethodID != "") {
			res.add(IssueMissingRemote, "subscription is billable but has no remote subscription", RecommendRepairSubscription)
		}
		return res.finish(), nil
	}

	remote, err := e.gw.GetSubscription(ctx, sub.RemoteSubscriptionID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		res.add(IssueSubscriptionMissing, fmt.Sprintf("remote subscription %s does not exist", sub.RemoteSubscriptionID), RecommendRepairSubscription)
		return res.finish(), nil
	case err != nil:
		res.add(IssueRemoteError, fmt.Sprintf("get subscription: %v", err), "")
		return res.finish(), nil
	}

	if want := expectedRemote(sub.Status); want != nil && !contains(want, remote.Status) {
		rec := RecommendPushStatus
		if remote.Status == "canceled" && remoteWorthy(sub.Status) {
			rec = RecommendRepairSubscription
		}
		res.add(IssueStatusMismatch, fmt.Sprintf("local status %s, remote status %s", sub.Status, remote.Status), rec)
	}
	if sub.RemotePriceID != "" && remote.PriceID != "" && remote.PriceID != sub.RemotePriceID {
		res.add(IssuePriceMismatch, fmt.Sprintf("remote subscription bills price %s, local record says %s", remote.PriceID, sub.RemotePriceID), RecommendRepairSubscription)
	}
	return res.finish(), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// RepairSubscriptionSynchronization rebuilds the remote side of a
// subscription from the local record: any live remote subscription is
// cancelled, the customer is ensured, a new remote subscription is created
// on the plan's price for the subscription's cycle and its id is saved.
// Subscriptions that should not be billed only get their remote side
// cancelled.
func (e *Engine) RepairSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	unlock, err := e.locker.Lock(ctx, subscription.LockKey(id))
	if err != nil {
		return nil, errors.Join(subscription.ErrConcurrentModification, err)
	}
	defer unlock()

	sub, err := e.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := e.repairSubscription(ctx, sub)
	e.record(ctx, "subscription.repaired", "subscription", id.String(), err, map[string]any{
		"remote_subscription_id": sub.RemoteSubscriptionID,
	})
	return out, err
}

func (e *Engine) repairSubscription(ctx context.Context, cur *subscription.Subscription) (*subscription.Subscription, error) {
	next := cur.Clone()
	at := e.now()

	if next.HasRemote() {
		if err := e.cancelRemote(ctx, next.RemoteSubscriptionID); err != nil {
			return nil, errors.Join(subscription.ErrRemoteSyncFailure, err)
		}
		next.RemoteSubscriptionID = ""
		next.RemotePriceID = ""
	}
	next.SyncPending = false
	next.LastSyncError = ""

	if remoteWorthy(next.Status) {
		plan, err := e.plans.GetPlan(ctx, next.PlanID)
		if err != nil {
			return nil, err
		}
		if plan.PriceIDFor(next.BillingCycle) == "" {
			if err := e.syncPlan(ctx, plan); err != nil {
				return nil, err
			}
		}
		if err := e.CreateRemoteSubscription(ctx, next, plan); err != nil {
			return nil, errors.Join(subscription.ErrRemoteSyncFailure, err)
		}
		if next.Status == subscription.StatusPaused {
			if err := e.PushStatus(ctx, next, subscription.StatusPaused); err != nil {
				e.logger.LogAttrs(ctx, slog.LevelWarn, "recreated remote subscription could not be paused",
					logger.SubscriptionID(next.ID), logger.RemoteID(next.RemoteSubscriptionID), logger.Error(err))
				next.SyncPending = true
				next.LastSyncError = err.Error()
			}
		}
	}

	next.LastSyncedAt = &at
	next.UpdatedAt = at

	err := subscription.RunInTx(ctx, e.subs, func(tx subscription.Tx) error {
		return tx.Update(ctx, next)
	})
	if err != nil {
		if next.RemoteSubscriptionID != "" {
			e.logger.LogAttrs(ctx, slog.LevelError, "remote subscription recreated but not saved",
				logger.SubscriptionID(next.ID),
				logger.RemoteID(next.RemoteSubscriptionID),
				logger.Error(err),
			)
		}
		return nil, err
	}
	return next, nil
}

// cancelRemote cancels a remote subscription unless it is already gone.
func (e *Engine) cancelRemote(ctx context.Context, remoteID string) error {
	remote, err := e.gw.GetSubscription(ctx, remoteID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("get subscription: %w", err)
	case remote.Status == "canceled":
		return nil
	}
	if _, err := e.gw.CancelSubscription(ctx, remoteID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// MarkSynchronized clears the drift flags of a subscription whose remote
// side has been verified or fixed.
func (e *Engine) MarkSynchronized(ctx context.Context, id uuid.UUID) error {
	unlock, err := e.locker.Lock(ctx, subscription.LockKey(id))
	if err != nil {
		return errors.Join(subscription.ErrConcurrentModification, err)
	}
	defer unlock()

	return subscription.RunInTx(ctx, e.subs, func(tx subscription.Tx) error {
		cur, err := e.subs.Get(ctx, id)
		if err != nil {
			return err
		}
		if !cur.SyncPending && cur.LastSyncError == "" {
			return nil
		}
		at := e.now()
		next := cur.Clone()
		next.SyncPending = false
		next.LastSyncError = ""
		next.LastSyncedAt = &at
		next.UpdatedAt = at
		return tx.Update(ctx, next)
	})
}
