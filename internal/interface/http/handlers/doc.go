// Package handlers contains transport-agnostic HTTP building blocks shared by
// the API server: composite health checks, request-scoped middleware and a
// keyed token-bucket rate limiter.
//
// # Health Checks
//
// Critical checks gate readiness; optional ones only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", conn.Health)
//	checker.AddOptionalCheck("redis", handlers.PingCheck(cache))
//
// # Middleware
//
//	h := handlers.ChainHandler(api,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	    handlers.TimeoutMiddleware(10*time.Second),
//	)
package handlers
