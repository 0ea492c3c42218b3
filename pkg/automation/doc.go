// Package automation runs the periodic subscription sweeps: billing due
// subscriptions, mirroring gateway renewals, expiring lapsed
// subscriptions, ending trials and repairing gateway drift.
//
// Service holds the sweeps. Each returns a BatchResult and handles every
// subscription independently on a bounded worker pool. Runner schedules
// the sweeps:
//
//	svc := automation.NewService(store, lifecycle, gw,
//		automation.WithConfig(cfg),
//		automation.WithDriftRepairer(engine),
//	)
//	runner := automation.NewRunner(automation.WithCheckInterval(cfg.CheckInterval))
//	if err := automation.Register(runner, svc, cfg); err != nil {
//		return err
//	}
//	return runner.Start(ctx)
package automation
