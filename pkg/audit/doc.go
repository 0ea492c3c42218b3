// Package audit records who did what to which subscription.
//
// Logger builds events and writes them to a Storage. Record is
// fire-and-forget and is what the subscription service uses after a
// committed change; Log and LogError return the storage error to the caller.
//
// AsyncWriter sits between Logger and a BatchWriter (such as the Postgres
// audit table) and groups events into bulk inserts:
//
//	aw := audit.NewAsyncWriter(pgAuditWriter, audit.AsyncOptions{})
//	defer aw.Close(context.Background())
//	al := audit.NewLogger(aw)
package audit
