// Package subscription is the lifecycle core: the subscription model, the
// one authoritative status transition table and the Service that applies
// it.
//
// Every status change goes through Service. A change is validated against
// the table, mirrored to the payment gateway on a best-effort basis and
// committed together with a StatusHistory row in a single Tx:
//
//	svc := subscription.NewService(store, store,
//		subscription.WithSynchronizer(engine),
//		subscription.WithNotifier(notificationManager),
//		subscription.WithAuditor(auditLogger),
//	)
//	sub, err := svc.Pause(ctx, id, "vacation", userID)
//
// Cancelled is terminal for the table. Reactivate is the separate, audited
// path back to Active.
//
// ResultFromError maps any returned error to a Result with an HTTP-style
// status code.
package subscription
