package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// JobFunc is one periodic job.
type JobFunc func(ctx context.Context) (*BatchResult, error)

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
	nextRun  time.Time
	running  bool
}

// Runner runs named jobs on their schedules until its context ends. Every
// job runs once on start. A job never overlaps itself: a run that is due
// while the previous one is still going is skipped.
type Runner struct {
	mu       sync.Mutex
	jobs     map[string]*job
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

type RunnerOption func(*Runner)

// WithCheckInterval sets how often the runner looks for due jobs.
// Default 30s.
func WithCheckInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:     make(map[string]*job),
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddJob registers fn under name.
func (r *Runner) AddJob(name string, schedule Schedule, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
	}
	r.jobs[name] = &job{name: name, schedule: schedule, fn: fn}
	r.logger.Info("registered job", logger.Job(name), slog.String("schedule", schedule.String()))
	return nil
}

// Jobs lists the registered job names in order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start blocks running due jobs until ctx is done, then waits for running
// jobs to return.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	n := len(r.jobs)
	r.mu.Unlock()
	if n == 0 {
		return ErrRunnerNotConfigured
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.wg.Wait()

	r.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.runDue(ctx)
		}
	}
}

// RunNow runs the named job synchronously, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) (*BatchResult, error) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	switch {
	case !ok:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	case j.running:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	j.running = true
	r.mu.Unlock()

	return r.execute(ctx, j)
}

func (r *Runner) runDue(ctx context.Context) {
	now := r.now()
	r.mu.Lock()
	var due []*job
	for _, j := range r.jobs {
		if j.running || (!j.nextRun.IsZero() && j.nextRun.After(now)) {
			continue
		}
		j.running = true
		j.nextRun = j.schedule.Next(now)
		due = append(due, j)
	}
	r.mu.Unlock()

	for _, j := range due {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_, _ = r.execute(ctx, j)
		}()
	}
}

// execute runs j, which the caller has marked running.
func (r *Runner) execute(ctx context.Context, j *job) (res *BatchResult, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, p)
		}
		r.mu.Lock()
		j.running = false
		r.mu.Unlock()

		attrs := []slog.Attr{logger.Job(j.name), logger.Duration(time.Since(start))}
		if res != nil {
			attrs = append(attrs, slog.Int("processed", res.Processed), slog.Int("failed", res.Failed), slog.Int("skipped", res.Skipped))
		}
		if err != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "job failed", append(attrs, logger.Error(err))...)
			return
		}
		r.logger.LogAttrs(ctx, slog.LevelDebug, "job finished", attrs...)
	}()
	return j.fn(ctx)
}

// Register adds the standard sweeps of s to r on the intervals from cfg.
// Drift reconciliation is only added when s has a DriftRepairer.
func Register(r *Runner, s *Service, cfg Config) error {
	at := func(fn func(context.Context, time.Time) (*BatchResult, error)) JobFunc {
		return func(ctx context.Context) (*BatchResult, error) { return fn(ctx, time.Time{}) }
	}
	type entry struct {
		every time.Duration
		fn    JobFunc
	}
	jobs := map[string]entry{
		"billing":     {cfg.BillingInterval, at(s.ProcessDueBilling)},
		"renewals":    {cfg.RenewalInterval, at(s.ProcessAutomatedRenewals)},
		"expirations": {cfg.ExpirationInterval, at(s.ProcessExpiredSubscriptions)},
		"trials":      {cfg.TrialInterval, at(s.ProcessTrialExpirations)},
	}
	if s.drift != nil {
		jobs["drift"] = entry{cfg.DriftInterval, s.ReconcileDrift}
	}
	for name, j := range jobs {
		if err := r.AddJob(name, Every(j.every), j.fn); err != nil {
			return err
		}
	}
	return nil
}
