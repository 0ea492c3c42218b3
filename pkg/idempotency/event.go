package idempotency

import "time"

// ProcessedEvent is a ledger row for one external event id.
type ProcessedEvent struct {
	EventID            string
	EventType          string
	ReceivedAt         time.Time
	IsSuccess          bool
	RetryCount         int
	MaxRetries         int
	PermanentlyFailed  bool
	ProcessingDuration time.Duration
	Metadata           string
	LastError          string
	ProcessedAt        *time.Time
	// LeaseUntil marks a delivery in flight. Another delivery of the same
	// event is turned away until it passes.
	LeaseUntil *time.Time
	UpdatedAt  time.Time
}

// Leased reports whether a delivery holds the event at now.
func (e *ProcessedEvent) Leased(now time.Time) bool {
	return e.LeaseUntil != nil && e.LeaseUntil.After(now)
}

// Exhausted reports whether no further attempt is allowed.
func (e *ProcessedEvent) Exhausted() bool {
	return e.PermanentlyFailed || (e.MaxRetries > 0 && e.RetryCount >= e.MaxRetries)
}

// Decision tells the caller whether to process an event.
type Decision struct {
	ShouldProcess bool
	IsNewEvent    bool
	Reason        string
}

// Reasons reported in Decision.Reason.
const (
	ReasonNewEvent          = "new event"
	ReasonAlreadyProcessed  = "already processed"
	ReasonPermanentlyFailed = "permanently failed"
	ReasonInProgress        = "in progress"
	ReasonRetry             = "retry"
	ReasonUntracked         = "untracked: missing event id"
	ReasonFailOpen          = "idempotency check failed, processing anyway"
)
