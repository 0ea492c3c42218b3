// Package redis connects to Redis and provides a distributed
// subscription.Locker on top of it.
//
// Connect retries the initial ping according to Config, which is usually
// parsed from REDIS_* environment variables:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := redis.NewLocker(client, cfg, log)
//	svc := subscription.NewService(store, plans, subscription.WithLocker(locker))
//
// Locker uses SET NX with a per-acquisition token and a TTL. Release runs a
// compare-and-delete script so a holder never frees a lock it lost to
// expiry. Healthcheck plugs into the readiness endpoint.
package redis
