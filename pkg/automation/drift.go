package automation

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// ReconcileDrift validates every subscription flagged SyncPending and
// brings its remote side back in line: a remote that only lags on status
// gets the status pushed, anything worse is repaired. A subscription the
// gateway could not be asked about stays flagged for the next run.
func (s *Service) ReconcileDrift(ctx context.Context) (*BatchResult, error) {
	if s.drift == nil {
		return nil, ErrDriftRepairerRequired
	}
	subs, err := s.list(ctx, subscription.Filter{SyncPending: boolPtr(true)})
	if err != nil {
		return nil, fmt.Errorf("list drifted subscriptions: %w", err)
	}
	return s.sweep(ctx, "drift", subs, s.reconcileOne), nil
}

func (s *Service) reconcileOne(ctx context.Context, sub *subscription.Subscription) (outcome, error) {
	res, err := s.drift.ValidateSubscriptionSynchronization(ctx, sub.ID)
	if err != nil {
		return failed, err
	}
	if res.Has(reconcile.IssueRemoteError) {
		return failed, fmt.Errorf("%w: %s", subscription.ErrRemoteSyncFailure, firstMessage(res, reconcile.IssueRemoteError))
	}

	switch {
	case onlyIssues(res, reconcile.IssueSyncPending):
	case onlyIssues(res, reconcile.IssueSyncPending, reconcile.IssueStatusMismatch) && pushable(sub.Status):
		if err := s.drift.SynchronizeSubscriptionStatus(ctx, sub.ID, sub.Status); err != nil {
			return failed, err
		}
	default:
		if _, err := s.drift.RepairSubscriptionSynchronization(ctx, sub.ID); err != nil {
			return failed, err
		}
		return processed, nil
	}
	if err := s.drift.MarkSynchronized(ctx, sub.ID); err != nil {
		return failed, err
	}
	return processed, nil
}

// onlyIssues reports whether every issue in res has one of codes.
func onlyIssues(res *reconcile.ValidationResult, codes ...reconcile.IssueCode) bool {
	for _, is := range res.Issues {
		ok := false
		for _, c := range codes {
			if is.Code == c {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func firstMessage(res *reconcile.ValidationResult, code reconcile.IssueCode) string {
	for _, is := range res.Issues {
		if is.Code == code {
			return is.Message
		}
	}
	return ""
}

// pushable reports whether st has a remote operation that mirrors it.
func pushable(st subscription.Status) bool {
	switch st {
	case subscription.StatusActive, subscription.StatusPaused, subscription.StatusCancelled,
		subscription.StatusExpired, subscription.StatusTrialExpired:
		return true
	}
	return false
}
