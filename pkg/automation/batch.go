package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Failure is one subscription a sweep could not handle.
type Failure struct {
	SubscriptionID uuid.UUID
	Err            error
}

// BatchResult summarizes a sweep. Processed, Failed and Skipped add up to
// the number of candidates.
type BatchResult struct {
	Processed int
	Failed    int
	Skipped   int
	Failures  []Failure
}

// Total returns the number of candidates the sweep looked at.
func (r *BatchResult) Total() int { return r.Processed + r.Failed + r.Skipped }

// Err joins every failure, or returns nil when there were none.
func (r *BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

type outcome int

const (
	processed outcome = iota
	skipped
	failed
)

// itemFunc handles one candidate. An error always counts as a failure;
// failed without an error is not valid.
type itemFunc func(ctx context.Context, sub *subscription.Subscription) (outcome, error)

// sweep runs fn over subs on a bounded pool. A failing item never stops
// the others.
func (s *Service) sweep(ctx context.Context, job string, subs []*subscription.Subscription, fn itemFunc) *BatchResult {
	start := time.Now()
	res := &BatchResult{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				res.Failed++
				res.Failures = append(res.Failures, Failure{SubscriptionID: sub.ID, Err: err})
				mu.Unlock()
				return nil
			}
			out, err := fn(ctx, sub)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				res.Failures = append(res.Failures, Failure{SubscriptionID: sub.ID, Err: err})
				s.logger.LogAttrs(ctx, slog.LevelWarn, "sweep item failed",
					logger.Job(job),
					logger.SubscriptionID(sub.ID),
					logger.Error(err),
				)
			case out == skipped:
				res.Skipped++
			default:
				res.Processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	level := slog.LevelInfo
	if res.Failed > 0 {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "sweep finished",
		logger.Component("automation"),
		logger.Job(job),
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		logger.Duration(time.Since(start)),
	)
	return res
}
