package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/notifications"
)

// CreateRequest starts a subscription for a user.
type CreateRequest struct {
	UserID          string
	PlanID          string
	Cycle           billing.Cycle // plan default when empty
	PaymentMethodID string
	// DisableAutoRenew creates a subscription that expires at the end of its period.
	DisableAutoRenew bool
	ActorID          string
	At               time.Time
}

// Create persists a new subscription. The initial status is TrialActive
// when the plan allows a trial, Pending when a priced plan has no payment
// method yet and Active otherwise.
//
// Creation is not local-first: when a synchronizer is configured and the
// remote subscription cannot be created, nothing is stored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("user id is required"))
	}
	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, errors.Join(ErrInvalidInput, fmt.Errorf("plan %q is not available", plan.ID))
	}
	cycle := req.Cycle
	if cycle == "" {
		cycle = plan.DefaultCycle()
	}
	if !cycle.Valid() {
		return nil, errors.Join(ErrInvalidInput, billing.ErrUnknownCycle)
	}

	at := s.at(req.At)
	sub := &Subscription{
		ID:              uuid.New(),
		UserID:          req.UserID,
		PlanID:          plan.ID,
		BillingCycle:    cycle,
		Price:           plan.PriceFor(cycle),
		Currency:        plan.Currency,
		StartDate:       at,
		NextBillingDate: billing.NextBillingDate(at, cycle),
		PaymentMethodID: req.PaymentMethodID,
		AutoRenew:       !req.DisableAutoRenew,
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	switch trial, ok := billing.TrialWindow(at, plan.TrialDays); {
	case plan.TrialAllowed && ok:
		sub.Status = StatusTrialActive
		sub.TrialStart = timePtr(trial.Start)
		sub.TrialEnd = timePtr(trial.End)
		sub.NextBillingDate = trial.End
	case sub.Price.IsPositive() && req.PaymentMethodID == "":
		sub.Status = StatusPending
	default:
		sub.Status = StatusActive
		sub.ActivatedDate = timePtr(at)
	}

	if s.sync != nil && req.PaymentMethodID != "" {
		rctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
		err := s.sync.CreateRemoteSubscription(rctx, sub, plan)
		cancel()
		if err != nil {
			s.auditFailure(ctx, "subscription.create", sub.ID, req.ActorID, err)
			return nil, errors.Join(ErrRemoteSyncFailure, err)
		}
		sub.LastSyncedAt = timePtr(at)
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}
	err = RunInTx(ctx, s.store, func(tx Tx) error {
		if err := tx.Create(ctx, sub); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, newHistory(sub.ID, nil, sub.Status, "created", req.ActorID, at))
	})
	if err != nil {
		if sub.HasRemote() {
			s.logger.LogAttrs(ctx, slog.LevelError, "remote subscription created but local insert failed",
				logger.SubscriptionID(sub.ID),
				logger.RemoteID(sub.RemoteSubscriptionID),
				logger.Error(err),
			)
		}
		return nil, err
	}

	s.announce(ctx, sub, nil, "created", req.ActorID)
	return sub, nil
}

// ReactivateRequest brings a cancelled or expired subscription back.
type ReactivateRequest struct {
	SubscriptionID uuid.UUID
	Reason         string
	ActorID        string
	At             time.Time
}

// Reactivate is the only way out of Cancelled. It bypasses the transition
// table, restarts the billing period and records a history row with a
// "reactivation:" reason. When the subscription was linked to the gateway
// its remote side is restored: a remote that still bills is reused, any
// other is cancelled and replaced. Failing that, the subscription is
// flagged for reconciliation.
func (s *Service) Reactivate(ctx context.Context, req ReactivateRequest) (*Subscription, error) {
	at := s.at(req.At)
	reason := "reactivation: " + strings.TrimSpace(req.Reason)

	var (
		from Status
		out  *Subscription
	)
	err := s.withLock(ctx, req.SubscriptionID, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if cur.Status == StatusActive {
			return ErrAlreadyInState
		}
		if cur.Status != StatusCancelled && cur.Status != StatusExpired {
			return errors.Join(ErrInvalidTransition, ErrNotReactivatable)
		}

		next := cur.Clone()
		applyEffects(&change{sub: next, reason: reason, at: at, reactivation: true}, StatusActive)
		next.ResumedDate = timePtr(at)
		next.NextBillingDate = billing.NextBillingDate(at, next.BillingCycle)
		next.AutoRenew = true

		if s.sync != nil && (cur.HasRemote() || cur.RemoteCustomerID != "") {
			s.recreateRemote(ctx, next, at)
		}

		if err := s.commit(ctx, next, newHistory(cur.ID, &cur.Status, StatusActive, reason, req.ActorID, at)); err != nil {
			return err
		}
		from, out = cur.Status, next
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, "subscription.reactivate", req.SubscriptionID, req.ActorID, err)
		return nil, err
	}

	s.notify(ctx, out, notifications.KindReactivated, req.Reason)
	s.auditor.Record(ctx, audit.Event{
		ActorID:    actorOrSystem(req.ActorID),
		Action:     "subscription.reactivated",
		Resource:   "subscription",
		ResourceID: out.ID.String(),
		Result:     audit.ResultSuccess,
		Metadata: map[string]any{
			"from":         from.String(),
			"to":           StatusActive.String(),
			"reason":       reason,
			"sync_pending": out.SyncPending,
		},
	})
	return out, nil
}

func (s *Service) recreateRemote(ctx context.Context, sub *Subscription, at time.Time) {
	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		s.markDrift(ctx, sub, err)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	if err := s.sync.CreateRemoteSubscription(rctx, sub, plan); err != nil {
		s.markDrift(ctx, sub, err)
		return
	}
	sub.SyncPending = false
	sub.LastSyncError = ""
	sub.LastSyncedAt = timePtr(at)
}

// ChangePlanRequest moves a subscription to another plan or cycle.
type ChangePlanRequest struct {
	SubscriptionID uuid.UUID
	NewPlanID      string
	Cycle          billing.Cycle // current cycle when empty
	ActorID        string
	At             time.Time
}

// ChangePlanResult reports the committed change and its proration.
type ChangePlanResult struct {
	Subscription *Subscription
	Proration    billing.Proration
	// PaymentID is set when a prorated charge was collected.
	PaymentID string
}

// ChangePlan switches plan or cycle mid-period. A positive proration is
// charged before anything is written and a failed charge aborts the change.
// Credits are reported but not refunded. Updating the remote price follows
// the local-first policy.
func (s *Service) ChangePlan(ctx context.Context, req ChangePlanRequest) (*ChangePlanResult, error) {
	at := s.at(req.At)
	res := &ChangePlanResult{}

	err := s.withLock(ctx, req.SubscriptionID, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if cur.Status != StatusActive && cur.Status != StatusTrialActive {
			return errors.Join(ErrInvalidTransition, fmt.Errorf("cannot change plan while %s", cur.Status))
		}
		plan, err := s.plans.GetPlan(ctx, req.NewPlanID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return errors.Join(ErrInvalidInput, fmt.Errorf("plan %q is not available", plan.ID))
		}
		if plan.Currency != cur.Currency {
			return errors.Join(ErrInvalidInput, errors.New("plan currency differs from subscription currency"))
		}
		cycle := req.Cycle
		if cycle == "" {
			cycle = cur.BillingCycle
		}
		if !cycle.Valid() {
			return errors.Join(ErrInvalidInput, billing.ErrUnknownCycle)
		}
		if plan.ID == cur.PlanID && cycle == cur.BillingCycle {
			return ErrAlreadyInState
		}

		newPrice := plan.PriceFor(cycle)
		if !cur.InTrial(at) {
			res.Proration = billing.Prorate(cur.Price, newPrice, cur.BillingCycle, at, cur.NextBillingDate)
		}
		if res.Proration.IsCharge() {
			id, err := s.charge(ctx, cur, res.Proration, plan)
			if err != nil {
				return err
			}
			res.PaymentID = id
		}

		next := cur.Clone()
		next.PlanID = plan.ID
		next.Price = newPrice
		next.UpdatedAt = at
		if cycle != cur.BillingCycle {
			next.BillingCycle = cycle
		}
		if s.sync != nil && cur.HasRemote() {
			if priceID := plan.PriceIDFor(cycle); priceID == "" {
				s.markDrift(ctx, next, ErrPriceNotConfigured)
			} else {
				rctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
				err := s.sync.UpdateRemotePrice(rctx, cur, priceID)
				cancel()
				if err != nil {
					s.markDrift(ctx, next, err)
				} else {
					next.RemotePriceID = priceID
					next.LastSyncedAt = timePtr(at)
				}
			}
		}

		if err := s.commit(ctx, next, nil); err != nil {
			if res.PaymentID != "" {
				s.logger.LogAttrs(ctx, slog.LevelError, "prorated charge collected but plan change not stored",
					logger.SubscriptionID(cur.ID),
					slog.String("payment_id", res.PaymentID),
					logger.Error(err),
				)
			}
			return err
		}
		res.Subscription = next
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, "subscription.plan_changed", req.SubscriptionID, req.ActorID, err)
		return nil, err
	}

	sub := res.Subscription
	s.notifier.Notify(ctx, notifications.New(notifications.KindPlanChanged, sub.UserID, sub.ID.String()).
		With("plan_id", sub.PlanID).
		With("proration", res.Proration.Amount.String()))
	s.auditor.Record(ctx, audit.Event{
		ActorID:    actorOrSystem(req.ActorID),
		Action:     "subscription.plan_changed",
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		Result:     audit.ResultSuccess,
		Metadata: map[string]any{
			"plan_id":        sub.PlanID,
			"cycle":          sub.BillingCycle.String(),
			"proration":      res.Proration.Amount.String(),
			"days_remaining": res.Proration.DaysRemaining,
		},
	})
	return res, nil
}

func (s *Service) charge(ctx context.Context, sub *Subscription, p billing.Proration, plan *Plan) (string, error) {
	if s.charger == nil {
		return "", errors.Join(ErrPaymentFailed, errors.New("no payment processor configured"))
	}
	if sub.PaymentMethodID == "" && sub.RemoteCustomerID == "" {
		return "", errors.Join(ErrPaymentFailed, ErrPaymentMethodInvalid)
	}

	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.charger.ProcessPayment(ctx, gateway.Payment{
		PaymentMethodID: sub.PaymentMethodID,
		CustomerID:      sub.RemoteCustomerID,
		Amount:          p.Amount,
		Currency:        sub.Currency,
		Description:     fmt.Sprintf("Prorated upgrade to %s", plan.Name),
		IdempotencyKey:  fmt.Sprintf("proration-%s-v%d", sub.ID, sub.Version),
	})
	if err != nil {
		return "", errors.Join(ErrPaymentFailed, err)
	}
	if !result.Succeeded() {
		return "", errors.Join(ErrPaymentFailed, fmt.Errorf("payment %s: %s", result.Status, result.ErrorMessage))
	}
	return result.ID, nil
}

// RenewRequest extends a subscription to a new billing date.
type RenewRequest struct {
	SubscriptionID  uuid.UUID
	NextBillingDate time.Time
	Reason          string
	ActorID         string
	At              time.Time
}

// Renew sets the next billing date. A subscription in PaymentFailed or
// Expired returns to Active in the same transaction; Active and
// TrialActive keep their status. Other statuses cannot be renewed.
func (s *Service) Renew(ctx context.Context, req RenewRequest) (*Subscription, error) {
	at := s.at(req.At)
	reason := req.Reason
	if reason == "" {
		reason = "renewed"
	}

	var (
		from Status
		out  *Subscription
	)
	err := s.withLock(ctx, req.SubscriptionID, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if !req.NextBillingDate.After(cur.NextBillingDate) {
			return errors.Join(ErrInvalidInput, errors.New("next billing date must move forward"))
		}

		next := cur.Clone()
		next.NextBillingDate = req.NextBillingDate
		next.UpdatedAt = at

		var h *StatusHistory
		switch cur.Status {
		case StatusActive, StatusTrialActive:
		case StatusPaymentFailed, StatusExpired:
			c := &change{sub: next, reason: reason, at: at, reactivation: true}
			if err := s.table.Apply(ctx, cur.Status, StatusActive, c); err != nil {
				return tableError(err)
			}
			h = newHistory(cur.ID, &cur.Status, StatusActive, reason, req.ActorID, at)
		default:
			return errors.Join(ErrInvalidTransition, fmt.Errorf("cannot renew while %s", cur.Status))
		}

		if err := s.commit(ctx, next, h); err != nil {
			return err
		}
		from, out = cur.Status, next
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, "subscription.renewed", req.SubscriptionID, req.ActorID, err)
		return nil, err
	}

	if from != out.Status {
		s.announce(ctx, out, &from, reason, req.ActorID)
	}
	s.notify(ctx, out, notifications.KindRenewed, "")
	s.auditor.Record(ctx, audit.Event{
		ActorID:    actorOrSystem(req.ActorID),
		Action:     "subscription.renewed",
		Resource:   "subscription",
		ResourceID: out.ID.String(),
		Result:     audit.ResultSuccess,
		Metadata:   map[string]any{"next_billing_date": out.NextBillingDate.Format(time.RFC3339)},
	})
	return out, nil
}
