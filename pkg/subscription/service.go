package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/statemachine"
)

// Service owns every mutation of a subscription. Each call serializes on a
// per-subscription lock, commits the status change and its history row in
// one transaction and reports the outcome to the notifier and auditor.
//
// Gateway pushes are local-first: a failed or timed-out remote call is
// logged, the subscription is flagged SyncPending and the local change is
// still committed. reconcile.Engine heals the drift later.
type Service struct {
	store    Store
	plans    PlanStore
	sync     Synchronizer
	charger  Charger
	notifier Notifier
	auditor  Auditor
	locker   Locker
	logger   *slog.Logger
	table    *statemachine.Table

	syncTimeout time.Duration
	now         func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSynchronizer enables gateway mirroring. Without it the Service works
// on local state only.
func WithSynchronizer(sync Synchronizer) ServiceOption {
	return func(s *Service) { s.sync = sync }
}

// WithCharger sets the payment processor used for prorated charges.
func WithCharger(c Charger) ServiceOption {
	return func(s *Service) { s.charger = c }
}

// WithNotifier sets where lifecycle notifications go. Nil keeps the no-op default.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithAuditor sets the audit sink for every committed or rejected change.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

// WithLocker replaces the in-process lock, e.g. with a Redis lock when
// several replicas share one store.
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSyncTimeout bounds each gateway call made during a transition. Default 10s.
func WithSyncTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithClock sets the time source used when a request carries no timestamp.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. Panics if store or plans is nil.
func NewService(store Store, plans PlanStore, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if plans == nil {
		panic("subscription: PlanStore is required")
	}
	s := &Service{
		store:       store,
		plans:       plans,
		notifier:    noopNotifier{},
		auditor:     noopAuditor{},
		locker:      NewLocalLocker(),
		logger:      slog.Default(),
		table:       newTransitionTable(),
		syncTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransitionRequest asks for a status change. At defaults to the service clock.
type TransitionRequest struct {
	SubscriptionID uuid.UUID
	Target         Status
	Reason         string
	ActorID        string
	At             time.Time
	// Remote marks a change reported by the gateway itself. It is applied
	// locally without being pushed back.
	Remote bool
}

// RequestTransition moves a subscription to req.Target through the
// transition table.
func (s *Service) RequestTransition(ctx context.Context, req TransitionRequest) (*Subscription, error) {
	if !req.Target.Valid() {
		return nil, ErrUnsupportedStatus
	}
	at := s.at(req.At)

	var (
		from Status
		out  *Subscription
	)
	err := s.withLock(ctx, req.SubscriptionID, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if cur.Status == req.Target {
			return ErrAlreadyInState
		}

		next := cur.Clone()
		if err := s.table.Apply(ctx, cur.Status, req.Target, &change{sub: next, reason: req.Reason, at: at}); err != nil {
			return tableError(err)
		}
		pushed := false
		if req.Remote {
			next.LastSyncedAt = timePtr(at)
		} else {
			pushed = s.pushStatus(ctx, cur, next, req.Target, at)
		}

		if err := s.commit(ctx, next, newHistory(cur.ID, &cur.Status, req.Target, req.Reason, req.ActorID, at)); err != nil {
			if pushed {
				s.logger.LogAttrs(ctx, slog.LevelError, "gateway updated but local commit failed",
					logger.SubscriptionID(cur.ID),
					logger.Transition(cur.Status.String(), req.Target.String()),
					logger.Error(err),
				)
			}
			return err
		}
		from, out = cur.Status, next
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, "subscription.transition", req.SubscriptionID, req.ActorID, err)
		return nil, err
	}

	s.announce(ctx, out, &from, req.Reason, req.ActorID)
	return out, nil
}

// Activate moves a subscription to Active where the transition table allows it.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, actorID string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusActive, ActorID: actorID})
}

// Pause suspends billing on request of the customer.
func (s *Service) Pause(ctx context.Context, id uuid.UUID, reason, actorID string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusPaused, Reason: reason, ActorID: actorID})
}

// Resume moves a paused subscription back to Active.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, actorID string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusActive, Reason: "resumed", ActorID: actorID})
}

// Suspend blocks a subscription for an administrative reason.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason, actorID string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusSuspended, Reason: reason, ActorID: actorID})
}

// Cancel ends a subscription. Only Reactivate brings it back.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actorID string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusCancelled, Reason: reason, ActorID: actorID})
}

// Expire ends a subscription whose billing period ran out.
func (s *Service) Expire(ctx context.Context, id uuid.UUID, reason string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusExpired, Reason: reason})
}

// MarkPaymentFailed records a declined renewal charge.
func (s *Service) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusPaymentFailed, Reason: reason})
}

// ExpireTrial ends a trial that was not converted.
func (s *Service) ExpireTrial(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.RequestTransition(ctx, TransitionRequest{SubscriptionID: id, Target: StatusTrialExpired, Reason: "trial ended"})
}

// Get returns a subscription by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, id)
}

// FindByRemoteID returns the subscription linked to a gateway subscription id.
func (s *Service) FindByRemoteID(ctx context.Context, remoteSubscriptionID string) (*Subscription, error) {
	if remoteSubscriptionID == "" {
		return nil, ErrNotFound
	}
	return s.store.GetByRemoteID(ctx, remoteSubscriptionID)
}

// History returns the status history of a subscription, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, LockKey(id))
	if err != nil {
		return errors.Join(ErrConcurrentModification, err)
	}
	defer unlock()
	return fn(ctx)
}

// commit writes sub and, when h is not nil, its history row in one transaction.
func (s *Service) commit(ctx context.Context, sub *Subscription, h *StatusHistory) error {
	return RunInTx(ctx, s.store, func(tx Tx) error {
		if err := tx.Update(ctx, sub); err != nil {
			return err
		}
		if h == nil {
			return nil
		}
		return tx.AppendHistory(ctx, h)
	})
}

// pushStatus mirrors target to the gateway when the move has a remote
// counterpart. It reports whether the gateway accepted the change; on
// failure next is flagged for reconciliation.
func (s *Service) pushStatus(ctx context.Context, cur, next *Subscription, target Status, at time.Time) bool {
	if s.sync == nil || !cur.HasRemote() || !mirrored(cur.Status, target) {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	if err := s.sync.PushStatus(ctx, cur, target); err != nil {
		s.markDrift(ctx, next, err)
		return false
	}
	next.SyncPending = false
	next.LastSyncError = ""
	next.LastSyncedAt = timePtr(at)
	return true
}

func (s *Service) markDrift(ctx context.Context, sub *Subscription, err error) {
	sub.SyncPending = true
	sub.LastSyncError = err.Error()
	s.logger.LogAttrs(ctx, slog.LevelWarn, "gateway sync failed, continuing with local change",
		logger.SubscriptionID(sub.ID),
		logger.RemoteID(sub.RemoteSubscriptionID),
		slog.String("status", sub.Status.String()),
		logger.Error(errors.Join(ErrRemoteSyncFailure, err)),
	)
}

// mirrored reports whether from→to has a gateway operation. Every terminal
// status stops remote billing with a cancel.
func mirrored(from, to Status) bool {
	switch to {
	case StatusPaused, StatusCancelled, StatusExpired, StatusTrialExpired:
		return true
	case StatusActive:
		return from == StatusPaused
	}
	return false
}

var statusKinds = map[Status]notifications.Kind{
	StatusActive:        notifications.KindActivated,
	StatusPaused:        notifications.KindPaused,
	StatusSuspended:     notifications.KindSuspended,
	StatusPaymentFailed: notifications.KindPaymentFailed,
	StatusCancelled:     notifications.KindCancelled,
	StatusExpired:       notifications.KindExpired,
	StatusTrialExpired:  notifications.KindTrialExpired,
	StatusTrialActive:   notifications.KindCreated,
}

// announce notifies and audits a committed status change.
func (s *Service) announce(ctx context.Context, sub *Subscription, from *Status, reason, actorID string) {
	kind, ok := statusKinds[sub.Status]
	if from == nil {
		kind, ok = notifications.KindCreated, true
	} else if sub.Status == StatusActive && *from == StatusPaused {
		kind = notifications.KindResumed
	}
	if ok {
		s.notify(ctx, sub, kind, reason)
	}

	meta := map[string]any{"to": sub.Status.String()}
	if from != nil {
		meta["from"] = from.String()
	}
	if reason != "" {
		meta["reason"] = reason
	}
	if sub.SyncPending {
		meta["sync_pending"] = true
	}
	s.auditor.Record(ctx, audit.Event{
		ActorID:    actorOrSystem(actorID),
		Action:     "subscription." + sub.Status.String(),
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		Result:     audit.ResultSuccess,
		Metadata:   meta,
	})

	s.logger.LogAttrs(ctx, slog.LevelInfo, "subscription status changed",
		logger.SubscriptionID(sub.ID),
		logger.Actor(actorID),
		slog.String("status", sub.Status.String()),
	)
}

func (s *Service) notify(ctx context.Context, sub *Subscription, kind notifications.Kind, reason string) {
	n := notifications.New(kind, sub.UserID, sub.ID.String()).With("plan_id", sub.PlanID)
	if reason != "" {
		n = n.With("reason", reason)
		n.Message = reason
	}
	s.notifier.Notify(ctx, n)
}

func (s *Service) auditFailure(ctx context.Context, action string, id uuid.UUID, actorID string, err error) {
	result := audit.ResultError
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAlreadyInState) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		result = audit.ResultFailure
	}
	s.auditor.Record(ctx, audit.Event{
		ActorID:    actorOrSystem(actorID),
		Action:     action,
		Resource:   "subscription",
		ResourceID: id.String(),
		Result:     result,
		Error:      err.Error(),
	})
}

func actorOrSystem(id string) string {
	if id == "" {
		return "system"
	}
	return id
}
