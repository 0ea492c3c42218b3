// Package pg connects to PostgreSQL through a pgx pool, applies goose
// migrations from an embedded filesystem and classifies driver errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// Healthcheck returns a probe suitable for readiness endpoints.
package pg
