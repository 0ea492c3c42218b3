// Package pgstore implements the subscription, idempotency, audit and
// notification storage interfaces on PostgreSQL using pgx.
//
// The schema ships as goose migrations in Migrations:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil { ... }
//	subs := pgstore.NewSubscriptionStore(pool)
//
// Subscription updates use optimistic locking on the version column. An
// update that loses the race returns subscription.ErrConcurrentModification.
package pgstore
