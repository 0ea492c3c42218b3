// Command subsyncd runs the subscription billing daemon: gateway webhook
// ingress, scheduled billing automation and drift reconciliation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/subsync/pkg/audit"
	"github.com/dmitrymomot/subsync/pkg/automation"
	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/environment"
	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/gateway/paddle"
	"github.com/dmitrymomot/subsync/pkg/gateway/stripe"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/idempotency"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/pgstore"
	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/redis"
	"github.com/dmitrymomot/subsync/pkg/requestid"
	"github.com/dmitrymomot/subsync/pkg/subscription"
	"github.com/dmitrymomot/subsync/pkg/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("subsyncd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg AppConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	ctx = environment.WithContext(ctx, env)
	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithEnvironment(string(env), cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	// Storage.
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if pgCfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
			return err
		}
	}
	store := pgstore.NewSubscriptionStore(pool)
	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	// Locking. Redis is optional: without it the daemon assumes it is the
	// only writer.
	var locker subscription.Locker = subscription.NewLocalLocker()
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return err
	}
	if redisCfg.ConnectionURL != "" {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = redis.NewLocker(client, redisCfg, log)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		log.Warn("REDIS_URL not set, using in-process subscription locks")
	}

	// Gateway.
	remote, ingress, err := newGateway(cfg)
	if err != nil {
		return err
	}
	gw := gateway.NewGuarded(remote, gateway.WithTimeout(cfg.GatewayTimeout), gateway.WithLogger(log))
	checks = append(checks, httpserver.Check{Name: "gateway", Fn: func(context.Context) error {
		if gw.Breaker().State() == gateway.CircuitOpen {
			return gateway.ErrCircuitOpen
		}
		return nil
	}})

	// Audit and notifications.
	var auditCfg audit.AsyncOptions
	if err := config.Load(&auditCfg); err != nil {
		return err
	}
	auditStore := pgstore.NewAuditStore(pool)
	auditWriter := audit.NewAsyncWriter(auditStore, auditCfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := auditWriter.Close(closeCtx); err != nil {
			log.LogAttrs(closeCtx, slog.LevelError, "flush audit events", logger.Error(err))
		}
	}()
	auditLog := audit.NewLogger(auditWriter,
		audit.WithSlog(log),
		audit.WithRequestIDExtractor(requestid.AuditExtractor),
	)

	directory := &customerDirectory{subs: store, gw: gw}
	deliverer, err := newDeliverer(cfg, directory, log)
	if err != nil {
		return err
	}
	notices := notifications.NewManager(pgstore.NewNotificationStore(pool), deliverer, notifications.WithLogger(log))

	// Core.
	engine := reconcile.NewEngine(gw, store, store,
		reconcile.WithCustomerDirectory(directory),
		reconcile.WithLocker(locker),
		reconcile.WithAuditor(auditLog),
		reconcile.WithLogger(log),
	)
	svc := subscription.NewService(store, store,
		subscription.WithSynchronizer(engine),
		subscription.WithCharger(gw),
		subscription.WithNotifier(notices),
		subscription.WithAuditor(auditLog),
		subscription.WithLocker(locker),
		subscription.WithLogger(log),
		subscription.WithSyncTimeout(cfg.SyncTimeout),
	)

	if cfg.PlansFile != "" {
		if err := seedPlans(ctx, cfg.PlansFile, store, engine, log); err != nil {
			return err
		}
	}

	guard := idempotency.NewGuard(pgstore.NewEventStore(pool),
		idempotency.WithMaxRetries(cfg.WebhookMaxRetries),
		idempotency.WithLease(cfg.WebhookLease),
		idempotency.WithLogger(log),
	)
	processor := webhook.NewProcessor(guard, svc, webhook.WithLogger(log))

	webhooks := []webhookRoute{ingress}
	if cfg.InternalWebhookSecret != "" {
		parser, err := webhook.NewHMACParser(cfg.InternalWebhookSecret, cfg.WebhookMaxAge)
		if err != nil {
			return err
		}
		webhooks = append(webhooks, webhookRoute{name: "internal", parser: parser})
	}

	// Automation.
	var autoCfg automation.Config
	if err := config.Load(&autoCfg); err != nil {
		return err
	}
	auto := automation.NewService(store, svc, gw,
		automation.WithConfig(autoCfg),
		automation.WithDriftRepairer(engine),
		automation.WithNotifier(notices),
		automation.WithLogger(log),
	)
	runner := automation.NewRunner(
		automation.WithCheckInterval(autoCfg.CheckInterval),
		automation.WithRunnerLogger(log),
	)
	if err := automation.Register(runner, auto, autoCfg); err != nil {
		return err
	}

	deps := routerDeps{env: env, log: log, checks: checks, processor: processor, webhooks: webhooks}
	if cfg.AdminToken != "" {
		deps.admin = &admin{
			token:   cfg.AdminToken,
			jobs:    runner,
			sync:    engine,
			subs:    svc,
			events:  guard,
			notices: notices,
			audit:   auditStore,
			log:     log,
		}
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.LogAttrs(ctx, slog.LevelInfo, "subsyncd starting",
		slog.String("gateway", cfg.Gateway),
		slog.Any("jobs", runner.Jobs()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, newRouter(deps)) })
	g.Go(func() error {
		if err := runner.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// newGateway builds the configured gateway adapter and its webhook ingress.
func newGateway(cfg AppConfig) (gateway.Gateway, webhookRoute, error) {
	switch cfg.Gateway {
	case "stripe":
		var sc stripe.Config
		if err := config.Load(&sc); err != nil {
			return nil, webhookRoute{}, err
		}
		gw, err := stripe.New(sc)
		if err != nil {
			return nil, webhookRoute{}, err
		}
		parser, err := stripe.NewWebhookParser(cfg.StripeWebhookSecret)
		if err != nil {
			return nil, webhookRoute{}, err
		}
		return gw, webhookRoute{name: "stripe", parser: parser}, nil
	case "paddle":
		var pc paddle.Config
		if err := config.Load(&pc); err != nil {
			return nil, webhookRoute{}, err
		}
		gw, err := paddle.New(pc)
		if err != nil {
			return nil, webhookRoute{}, err
		}
		parser, err := paddle.NewWebhookParser(pc.WebhookSecret)
		if err != nil {
			return nil, webhookRoute{}, err
		}
		return gw, webhookRoute{name: "paddle", parser: parser}, nil
	default:
		return nil, webhookRoute{}, fmt.Errorf("unknown gateway %q: want stripe or paddle", cfg.Gateway)
	}
}

// newDeliverer picks how notifications leave the process: Postmark email
// when enabled, JSON files for local development, or nowhere.
func newDeliverer(cfg AppConfig, book notifications.AddressBook, log *slog.Logger) (notifications.Deliverer, error) {
	var deliverers []notifications.Deliverer
	if cfg.EmailEnabled {
		var ec notifications.EmailConfig
		if err := config.Load(&ec); err != nil {
			return nil, err
		}
		email, err := notifications.NewEmailDeliverer(ec, book)
		if err != nil {
			return nil, err
		}
		deliverers = append(deliverers, email)
	}
	if cfg.NotificationsDir != "" {
		deliverers = append(deliverers, notifications.NewFileDeliverer(cfg.NotificationsDir))
	}
	switch len(deliverers) {
	case 0:
		return notifications.NoOpDeliverer{}, nil
	case 1:
		return deliverers[0], nil
	default:
		return notifications.NewMultiDeliverer(log, deliverers...), nil
	}
}
