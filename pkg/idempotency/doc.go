// Package idempotency guarantees that an externally delivered event is
// processed to success at most once.
//
// Each event id gets one ledger row, created with insert-or-get semantics so
// concurrent deliveries of the same id cannot both start. A delivery that
// starts processing holds a lease; a concurrent delivery sees "in progress"
// and backs off. Failed attempts are retried until MaxRetries, after which
// the event is permanently failed and never processed again.
//
//	d := guard.CheckIdempotency(ctx, evt.ID, evt.Type)
//	if !d.ShouldProcess {
//		return nil
//	}
//	if err := handle(ctx, evt); err != nil {
//		return guard.MarkAsFailed(ctx, evt.ID, err, 0)
//	}
//	return guard.MarkAsProcessed(ctx, evt.ID, time.Since(start), "")
package idempotency
