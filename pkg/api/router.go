// Package api serves the admin HTTP surface: session inspection and
// control, audit queries, retention, health and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/api/auth"
	"github.com/marmos91/fixgate/pkg/api/handlers"
	apiMiddleware "github.com/marmos91/fixgate/pkg/api/middleware"
	"github.com/marmos91/fixgate/pkg/engine"
	"github.com/marmos91/fixgate/pkg/metrics"
)

// NewRouter builds the chi router.
//
// Routes:
//   - GET  /health             liveness
//   - GET  /health/ready       readiness (store probe)
//   - GET  /metrics            Prometheus metrics
//   - POST /api/v1/auth/login  admin login
//   - GET  /api/v1/sessions               (auth)
//   - GET  /api/v1/sessions/{id}          (auth)
//   - POST /api/v1/sessions/{id}/disconnect (auth)
//   - DELETE /api/v1/sessions/{id}        (auth)
//   - GET  /api/v1/sessions/{id}/replay   (auth)
//   - GET  /api/v1/sessions/{id}/audit    (auth)
//   - POST /api/v1/sessions/{id}/archive  (auth)
//   - POST /api/v1/retention/purge        (auth)
func NewRouter(eng *engine.Engine, jwtService *auth.JWTService, cfg Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(eng)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(jwtService, cfg.AdminUser, cfg.AdminPasswordHash)
	sessionHandler := handlers.NewSessionHandler(eng)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Remove)
					r.Post("/disconnect", sessionHandler.Disconnect)
					r.Get("/replay", sessionHandler.Replay)
					r.Get("/audit", sessionHandler.Audit)
					r.Post("/archive", sessionHandler.Archive)
				})
			})

			r.Post("/retention/purge", sessionHandler.Purge)
		})
	})

	return r
}

// requestLogger logs one line per request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, logger.Duration(start))
	})
}
