package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// ContextExtractor pulls a value out of a request context.
type ContextExtractor func(context.Context) (string, bool)

// Logger writes audit events to a Storage.
type Logger struct {
	storage       Storage
	log           *slog.Logger
	actorFrom     ContextExtractor
	requestIDFrom ContextExtractor
	recordTimeout time.Duration
	now           func() time.Time
}

type Option func(*Logger)

// WithActorExtractor fills ActorID from context when no actor is given.
func WithActorExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.actorFrom = fn }
}

func WithRequestIDExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.requestIDFrom = fn }
}

// WithSlog sets the logger used to report events that could not be stored.
func WithSlog(log *slog.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &Logger{
		storage:       storage,
		log:           slog.Default(),
		recordTimeout: 10 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultSuccess)
	for _, opt := range opts {
		opt(&event)
	}
	return l.store(ctx, event)
}

// LogError records a failed action.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultError)
	if err != nil {
		event.Error = err.Error()
	}
	for _, opt := range opts {
		opt(&event)
	}
	return l.store(ctx, event)
}

// Record stores a prepared event in the background. Failures are logged
// and never reach the caller.
func (l *Logger) Record(ctx context.Context, event Event) {
	base := l.newEvent(ctx, event.Action, event.Result)
	if event.ID == "" {
		event.ID = base.ID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = base.CreatedAt
	}
	if event.ActorID == "" {
		event.ActorID = base.ActorID
	}
	if event.RequestID == "" {
		event.RequestID = base.RequestID
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, l.recordTimeout)
		defer cancel()
		if err := l.store(ctx, event); err != nil {
			l.log.LogAttrs(ctx, slog.LevelError, "failed to record audit event",
				slog.String("action", event.Action),
				slog.String("resource_id", event.ResourceID),
				logger.Error(err),
			)
		}
	}()
}

func (l *Logger) newEvent(ctx context.Context, action string, result Result) Event {
	e := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now(),
	}
	if l.actorFrom != nil {
		if v, ok := l.actorFrom(ctx); ok {
			e.ActorID = v
		}
	}
	if l.requestIDFrom != nil {
		if v, ok := l.requestIDFrom(ctx); ok {
			e.RequestID = v
		}
	}
	return e
}

func (l *Logger) store(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}
