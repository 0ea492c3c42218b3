// Package logger builds *slog.Logger instances with consistent attribute
// naming for the subscription billing services.
//
// New takes functional options to pick the output format and level, attach
// static attributes and register ContextExtractor callbacks. The returned
// logger's handler is wrapped in LogHandlerDecorator, which runs every
// extractor on each record so that request-scoped values such as a webhook
// event id end up in every line without threading them by hand.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "subsyncd"),
//	    logger.WithContextExtractors(logger.CorrelationIDExtractor()),
//	)
//
//	ctx = logger.WithCorrelationID(ctx, eventID)
//	log.LogAttrs(ctx, slog.LevelWarn, "remote sync failed",
//	    logger.SubscriptionID(sub.ID),
//	    logger.Transition("active", "paused"),
//	    logger.Error(err),
//	)
//
// Helpers in attr.go return empty attributes for nil inputs, which slog drops.
package logger
