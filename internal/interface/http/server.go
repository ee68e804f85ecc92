// Package http implements the REST API of the mentorship core.
// Every /api/v1 route requires a bearer session token; the resolved principal
// is passed explicitly into each command and query.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/command"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/query"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/auth"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/metrics"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/interface/http/handlers"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds listener limits and per-request bounds.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout is the deadline put on every /api/v1 request context.
	RequestTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	// MetricsPath serves Prometheus when Dependencies.Metrics is set.
	MetricsPath string

	// Version is reported by /health.
	Version string
}

func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    time.Minute,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		MetricsPath:    "/metrics",
		Version:        "v1",
	}
}

func (c Config) listenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies are the use cases the routes call. Every command and query
// handler and the Resolver are required.
type Dependencies struct {
	SubmitApplication *command.SubmitApplicationHandler
	DecideApplication *command.DecideApplicationHandler
	Reports           *command.ReportHandler

	GetApplication   *query.GetApplicationHandler
	ListApplications *query.ListApplicationsHandler
	ListReports      *query.ListReportsHandler
	Dashboard        *query.ArtisanDashboardHandler

	// Resolver turns the bearer token into the acting principal.
	Resolver identity.Resolver

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker

	// Optional. A nil Metrics disables the endpoint and the middleware.
	Metrics *metrics.Metrics

	// Optional. Keyed by the resolved actor id.
	RateLimiter *handlers.KeyedRateLimiter
}

func (d Dependencies) validate() error {
	if d.Resolver == nil {
		return errors.New("http: identity resolver is required")
	}
	if d.SubmitApplication == nil || d.DecideApplication == nil || d.Reports == nil ||
		d.GetApplication == nil || d.ListApplications == nil || d.ListReports == nil ||
		d.Dashboard == nil {
		return errors.New("http: all command and query handlers are required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config  Config
	deps    Dependencies
	mux     *http.ServeMux
	handler http.Handler
	logger  *logger.Logger
	srv     *http.Server

	// startedAt is unix nanos while serving, zero otherwise.
	startedAt atomic.Int64
}

func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		config: config,
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: log.With(logger.Component("http")),
	}
	s.routes()
	s.handler = s.wrap(s.mux)
	s.srv = &http.Server{
		Addr:           config.listenAddr(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s, nil
}

// Handler is the full middleware stack around the routes.
func (s *Server) Handler() http.Handler { return s.handler }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/live", s.handleLive)
	s.mux.HandleFunc("GET /health/ready", s.handleReady)
	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		s.mux.Handle("GET "+s.config.MetricsPath, s.deps.Metrics.Handler())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Applications
	// ─────────────────────────────────────────────────────────────────────────
	s.api("POST /api/v1/applications", s.handleSubmitApplication)
	s.api("GET /api/v1/applications/{id}", s.handleGetApplication)
	s.api("POST /api/v1/applications/{id}/decision", s.handleDecideApplication)
	s.api("POST /api/v1/applications/{id}/complete", s.handleCompleteApplication)
	s.api("GET /api/v1/artisan/applications", s.handleListArtisanApplications)
	s.api("GET /api/v1/applicant/applications", s.handleListApplicantApplications)
	s.api("GET /api/v1/artisan/dashboard", s.handleDashboard)

	// ─────────────────────────────────────────────────────────────────────────
	// Progress reports
	// ─────────────────────────────────────────────────────────────────────────
	s.api("POST /api/v1/applications/{id}/reports", s.handleCreateReport)
	s.api("GET /api/v1/applications/{id}/reports", s.handleListReports)
	s.api("PUT /api/v1/reports/{id}", s.handleUpdateReport)
	s.api("DELETE /api/v1/reports/{id}", s.handleDeleteReport)
}

type principalHandler func(http.ResponseWriter, *http.Request, identity.Principal)

// api registers an authenticated route with body and time limits.
func (s *Server) api(pattern string, h principalHandler) {
	s.mux.Handle(pattern, handlers.ChainHandler(
		s.authenticate(h),
		handlers.NoCacheMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
		handlers.TimeoutMiddleware(s.config.RequestTimeout),
	))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// wrap applies, outermost first: request id, panic recovery, access log,
// metrics, security headers.
func (s *Server) wrap(h http.Handler) http.Handler {
	mw := []handlers.MiddlewareFunc{s.withRequestID, s.recoverPanics, s.accessLog}
	if s.deps.Metrics != nil {
		mw = append(mw, s.instrument)
	}
	mw = append(mw, handlers.SecurityHeadersMiddleware)
	return handlers.ChainHandler(h, mw...)
}

// withRequestID honours a sane inbound X-Request-ID and otherwise mints one.
// The id becomes the correlation id of every event the request emits.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapResponseWriter(w)
		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
		}
		if rw.actor != nil {
			fields = append(fields, logger.ActorID(rw.actor.UserID), logger.Role(string(rw.actor.Role)))
		}

		log := logger.FromContext(r.Context())
		switch {
		case rw.statusCode >= 500:
			log.Error("http request", fields...)
		case rw.statusCode >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

// instrument labels by mux pattern so ids do not explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := s.deps.Metrics
		start := time.Now()
		rw := wrapResponseWriter(w)

		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()
		next.ServeHTTP(rw, r)

		// r.Pattern is set by the mux on this same request value.
		m.RecordHTTPRequest(r.Method, r.Pattern, rw.statusCode, time.Since(start))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.FromContext(r.Context()).Error("panic recovered",
				logger.Any("panic", v),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
			)
			writeJSONError(w, r, http.StatusInternalServerError, CodeInternal, "an unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token, applies the per-actor rate limit
// and puts the principal on the request context.
func (s *Server) authenticate(h principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeJSONError(w, r, http.StatusUnauthorized, CodeUnauthorized, "bearer token required", nil)
			return
		}

		principal, err := s.deps.Resolver.Resolve(r.Context(), token)
		if err != nil {
			status, code, message := classify(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
			}
			logger.FromContext(r.Context()).Debug("token rejected", logger.Err(err))
			writeJSONError(w, r, status, code, message, nil)
			return
		}

		if s.deps.RateLimiter != nil && !s.deps.RateLimiter.Allow(principal.UserID) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.HTTPRateLimited.Inc()
			}
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many requests, please try again later", nil)
			return
		}

		if rw, ok := w.(*responseWriter); ok {
			rw.actor = &principal
		}
		h(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)), principal)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens on Host:Port and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve blocks on ln until Shutdown. A second concurrent Serve fails.
func (s *Server) Serve(ln net.Listener) error {
	if !s.startedAt.CompareAndSwap(0, time.Now().UnixNano()) {
		_ = ln.Close()
		return errors.New("http: server already running")
	}
	s.logger.Info("starting HTTP server", logger.String("address", ln.Addr().String()))

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.startedAt.Swap(0) == 0 {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// Uptime is zero when not serving.
func (s *Server) Uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}
