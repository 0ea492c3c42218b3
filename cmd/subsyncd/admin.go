package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/automation"
	"github.com/dmitrymomot/subsync/pkg/idempotency"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type jobRunner interface {
	Jobs() []string
	RunNow(ctx context.Context, name string) (*automation.BatchResult, error)
}

type syncInspector interface {
	ValidateSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*reconcile.ValidationResult, error)
	RepairSubscriptionSynchronization(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	ValidatePlanSynchronization(ctx context.Context, planID string) (*reconcile.ValidationResult, error)
	RepairPlanSynchronization(ctx context.Context, planID string) (*subscription.Plan, error)
}

type historyReader interface {
	Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	History(ctx context.Context, id uuid.UUID) ([]*subscription.StatusHistory, error)
}

type failedEvents interface {
	Failed(ctx context.Context, limit int) ([]*idempotency.ProcessedEvent, error)
}

type notificationLister interface {
	List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error)
}

// admin serves operator endpoints for drift inspection, manual repair and
// on-demand job runs.
type admin struct {
	token   string
	jobs    jobRunner
	sync    syncInspector
	subs    historyReader
	events  failedEvents
	notices notificationLister
	audit   audit.Reader
	log     *slog.Logger
}

func (a *admin) routes(r chi.Router) {
	r.Use(a.authorize)

	r.Get("/jobs", a.listJobs)
	r.Post("/jobs/{job}/run", a.runJob)

	r.Get("/subscriptions/{id}", a.getSubscription)
	r.Get("/subscriptions/{id}/sync", a.validateSubscription)
	r.Post("/subscriptions/{id}/repair", a.repairSubscription)

	r.Get("/plans/{id}/sync", a.validatePlan)
	r.Post("/plans/{id}/repair", a.repairPlan)

	r.Get("/events/failed", a.failedEvents)
	r.Get("/users/{userID}/notifications", a.userNotifications)
	r.Get("/audit", a.auditTrail)
}

func (a *admin) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type failureBody struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}

type batchBody struct {
	Job       string        `json:"job"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Failures  []failureBody `json:"failures,omitempty"`
}

type issueBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type validationBody struct {
	Synchronized    bool        `json:"synchronized"`
	Issues          []issueBody `json:"issues"`
	Recommendations []string    `json:"recommendations"`
}

func newValidationBody(res *reconcile.ValidationResult) validationBody {
	body := validationBody{
		Synchronized:    res.Synchronized,
		Issues:          make([]issueBody, 0, len(res.Issues)),
		Recommendations: res.Recommendations,
	}
	if body.Recommendations == nil {
		body.Recommendations = []string{}
	}
	for _, is := range res.Issues {
		body.Issues = append(body.Issues, issueBody{Code: string(is.Code), Message: is.Message})
	}
	return body
}

type subscriptionBody struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"user_id"`
	PlanID               string        `json:"plan_id"`
	Status               string        `json:"status"`
	BillingCycle         string        `json:"billing_cycle"`
	Price                string        `json:"price"`
	Currency             string        `json:"currency"`
	NextBillingDate      time.Time     `json:"next_billing_date"`
	RemoteSubscriptionID string        `json:"remote_subscription_id,omitempty"`
	SyncPending          bool          `json:"sync_pending"`
	LastSyncError        string        `json:"last_sync_error,omitempty"`
	LastSyncedAt         *time.Time    `json:"last_synced_at,omitempty"`
	Version              int64         `json:"version"`
	History              []historyBody `json:"history,omitempty"`
}

type historyBody struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

func newSubscriptionBody(s *subscription.Subscription, history []*subscription.StatusHistory) subscriptionBody {
	body := subscriptionBody{
		ID:                   s.ID.String(),
		UserID:               s.UserID,
		PlanID:               s.PlanID,
		Status:               string(s.Status),
		BillingCycle:         string(s.BillingCycle),
		Price:                s.Price.StringFixed(2),
		Currency:             s.Currency,
		NextBillingDate:      s.NextBillingDate,
		RemoteSubscriptionID: s.RemoteSubscriptionID,
		SyncPending:          s.SyncPending,
		LastSyncError:        s.LastSyncError,
		LastSyncedAt:         s.LastSyncedAt,
		Version:              s.Version,
	}
	for _, h := range history {
		hb := historyBody{To: string(h.ToStatus), Reason: h.Reason, ChangedAt: h.ChangedAt}
		if h.FromStatus != nil {
			hb.From = string(*h.FromStatus)
		}
		if h.ChangedBy != nil {
			hb.ChangedBy = *h.ChangedBy
		}
		body.History = append(body.History, hb)
	}
	return body
}

func (a *admin) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": a.jobs.Jobs()})
}

func (a *admin) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	res, err := a.jobs.RunNow(r.Context(), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := batchBody{Job: name, Processed: res.Processed, Failed: res.Failed, Skipped: res.Skipped}
	for _, f := range res.Failures {
		body.Failures = append(body.Failures, failureBody{SubscriptionID: f.SubscriptionID.String(), Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *admin) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := a.subscriptionID(w, r)
	if !ok {
		return
	}
	sub, err := a.subs.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	history, err := a.subs.History(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionBody(sub, history))
}

func (a *admin) validateSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := a.subscriptionID(w, r)
	if !ok {
		return
	}
	res, err := a.sync.ValidateSubscriptionSynchronization(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newValidationBody(res))
}

func (a *admin) repairSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := a.subscriptionID(w, r)
	if !ok {
		return
	}
	sub, err := a.sync.RepairSubscriptionSynchronization(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionBody(sub, nil))
}

func (a *admin) validatePlan(w http.ResponseWriter, r *http.Request) {
	res, err := a.sync.ValidatePlanSynchronization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newValidationBody(res))
}

func (a *admin) repairPlan(w http.ResponseWriter, r *http.Request) {
	p, err := a.sync.RepairPlanSynchronization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                p.ID,
		"remote_product_id": p.RemoteProductID,
		"remote_price_ids":  p.RemotePriceIDs(),
	})
}

func (a *admin) failedEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.events.Failed(r.Context(), queryLimit(r, 100))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	type eventBody struct {
		EventID           string    `json:"event_id"`
		EventType         string    `json:"event_type"`
		RetryCount        int       `json:"retry_count"`
		MaxRetries        int       `json:"max_retries"`
		PermanentlyFailed bool      `json:"permanently_failed"`
		LastError         string    `json:"last_error"`
		ReceivedAt        time.Time `json:"received_at"`
	}
	out := make([]eventBody, 0, len(events))
	for _, e := range events {
		out = append(out, eventBody{
			EventID:           e.EventID,
			EventType:         e.EventType,
			RetryCount:        e.RetryCount,
			MaxRetries:        e.MaxRetries,
			PermanentlyFailed: e.PermanentlyFailed,
			LastError:         e.LastError,
			ReceivedAt:        e.ReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *admin) userNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := a.notices.List(r.Context(), chi.URLParam(r, "userID"), notifications.ListOptions{Limit: queryLimit(r, 50)})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *admin) auditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := a.audit.Find(r.Context(), audit.Filter{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		Resource:   q.Get("resource"),
		ResourceID: q.Get("resource_id"),
		Result:     audit.Result(q.Get("result")),
		Limit:      queryLimit(r, 100),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *admin) subscriptionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid subscription id"})
		return uuid.Nil, false
	}
	return id, true
}

func (a *admin) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.LogAttrs(r.Context(), slog.LevelError, "admin request failed",
			logger.Component("admin"),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, automation.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, automation.ErrJobRunning),
		errors.Is(err, subscription.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, subscription.ErrInvalidInput),
		errors.Is(err, subscription.ErrInvalidPlan):
		return http.StatusBadRequest
	case errors.Is(err, subscription.ErrRemoteSyncFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
