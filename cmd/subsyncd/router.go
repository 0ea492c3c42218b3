package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subsync/pkg/environment"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/requestid"
	"github.com/dmitrymomot/subsync/pkg/webhook"
)

// webhookRoute mounts one verified ingress endpoint under /webhooks.
type webhookRoute struct {
	name   string
	parser webhook.Parser
}

type routerDeps struct {
	env       environment.Environment
	log       *slog.Logger
	checks    []httpserver.Check
	processor webhook.EventProcessor
	webhooks  []webhookRoute
	admin     *admin
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	if d.env != "" {
		r.Use(environment.Middleware(d.env))
	}

	r.Get("/livez", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(d.log, 3*time.Second, d.checks...))

	r.Route("/webhooks", func(r chi.Router) {
		for _, wh := range d.webhooks {
			r.Method(http.MethodPost, "/"+wh.name, webhook.Handler(wh.parser, d.processor, d.log.With(slog.String("webhook", wh.name))))
		}
	})

	if d.admin != nil {
		r.Route("/admin", d.admin.routes)
	}
	return r
}
