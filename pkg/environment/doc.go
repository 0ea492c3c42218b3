// Package environment names the deployment environment and carries it
// through context.Context, HTTP requests and structured logs.
//
//	env := environment.Parse(cfg.Env)
//	router.Use(environment.Middleware(env))
//	log := logger.New(logger.WithContextExtractors(environment.LoggerExtractor()))
package environment
