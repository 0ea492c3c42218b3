// Package requestid correlates an inbound HTTP request with the logs and
// audit events it produces.
//
//	r.Use(requestid.Middleware)
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	auditLog := audit.NewLogger(store, audit.WithRequestIDExtractor(requestid.AuditExtractor))
//
// Client-supplied ids longer than 128 bytes or containing characters other
// than letters, digits, '_' and '-' are replaced with a fresh UUID.
package requestid
