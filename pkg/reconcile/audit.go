package reconcile

import (
	"context"

	"github.com/dmitrymomot/subsync/pkg/audit"
)

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, audit.Event) {}

func (e *Engine) record(ctx context.Context, action, resource, id string, err error, meta map[string]any) {
	ev := audit.Event{
		ActorID:    "system:reconcile",
		Action:     action,
		Resource:   resource,
		ResourceID: id,
		Result:     audit.ResultSuccess,
		Metadata:   meta,
	}
	if err != nil {
		ev.Result = audit.ResultError
		ev.Error = err.Error()
	}
	e.auditor.Record(ctx, ev)
}
