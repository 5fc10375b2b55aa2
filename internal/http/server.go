package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scadenze/internal/log"
	"scadenze/internal/middleware/ratelimit"
	"scadenze/internal/middleware/security"
	"scadenze/internal/middleware/trace"
	"scadenze/internal/services"
)

// OwnerHeader names the header carrying the owner every /api request acts for.
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// Deps are the collaborators the HTTP server needs.
type Deps struct {
	Commitments    *services.CommitmentService
	Reports        *services.ReportService
	Logger         *log.Logger
	RateLimit      ratelimit.Config
	MetricsEnabled bool
	// Ready reports whether downstream dependencies can serve requests. Optional.
	Ready func(ctx context.Context) error
}

// Server serves the JSON API.
type Server struct {
	http.Server
	commitments *services.CommitmentService
	reports     *services.ReportService
	logger      *log.Logger
	ready       func(ctx context.Context) error
	now         func() time.Time
	started     time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	detector := security.NewDetector()
	s := &Server{
		commitments:      deps.Commitments,
		reports:          deps.Reports,
		logger:           logger,
		ready:            deps.Ready,
		now:              time.Now,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(deps.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, log.NewStructuredLogger(logger)),
	}
	s.rateLimiter.Start()

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(deps.MetricsEnabled),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s
}

func (s *Server) routes(metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger.WithComponent(log.ComponentHTTP)))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(log.RequestIDMiddleware(trace.RequestID))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requireOwner)
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later")
		}))

		r.Route("/commitments", func(r chi.Router) {
			r.Get("/", s.handleListCommitments)
			r.Post("/", s.handleCreateCommitment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCommitment)
				r.Patch("/", s.handleUpdateCommitment)
				r.Delete("/", s.handleDeleteCommitment)
				r.Post("/link", s.handleLink)
				r.Delete("/link", s.handleUnlink)
				r.Post("/terms", s.handleAddTerm)
				r.Post("/payments", s.handleRecordPayment)
				r.Post("/reconcile", s.handleReconcile)
				r.Get("/orphans", s.handleCommitmentOrphans)
				r.Get("/audit", s.handleAudit)
				r.Get("/schedule", s.handleSchedule)
			})
		})

		r.Put("/terms/{id}", s.handleUpdateTerm)
		r.Delete("/terms/{id}", s.handleDeleteTerm)

		r.Post("/payments/{id}/settle", s.handleSettlePayment)
		r.Post("/payments/{id}/accept", s.handleAcceptOrphan)
		r.Delete("/payments/{id}", s.handleDeletePayment)

		r.Get("/orphans", s.handleOrphans)
		r.Post("/reconcile", s.handleReconcileAll)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/monthly", s.handleMonthlyTotals)
			r.Get("/arrears", s.handleArrears)
			r.Get("/upcoming", s.handleUpcoming)
		})
	})

	return r
}

// requireOwner rejects /api requests that do not name an owner.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := sanitizeInput(r.Header.Get(OwnerHeader))
		if owner == "" || len(owner) > 128 || strings.ContainsAny(owner, "|") {
			writeError(w, http.StatusUnauthorized, "missing_owner", OwnerHeader+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		logger := log.FromContext(ctx).With(log.FieldOwner, owner)
		ctx = context.WithValue(ctx, log.LoggerContextKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Shutdown stops the background limiter sweeper and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
