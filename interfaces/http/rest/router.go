package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mindmap/application/commands/bus"
	querybus "mindmap/application/queries/bus"
	"mindmap/interfaces/http/rest/handlers"
	"mindmap/interfaces/http/rest/middleware"
	pkgerrors "mindmap/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// RouterConfig holds the pieces the router mounts
type RouterConfig struct {
	AllowedOrigins []string
	Auth           middleware.AuthConfig

	// TrustProxyHeaders rewrites RemoteAddr from forwarding headers. Only
	// safe behind a proxy that sets them; the rate limiter keys on it.
	TrustProxyHeaders bool

	// Relay is mounted at /ws when set. It performs its own optional
	// authentication because browsers cannot send headers on upgrade.
	Relay http.Handler

	// Metrics is mounted at /metrics when set
	Metrics http.Handler

	// Middlewares run after request logging, e.g. Prometheus instrumentation
	Middlewares []func(http.Handler) http.Handler

	Readiness map[string]ReadinessCheck
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	config     RouterConfig
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	config RouterConfig,
	logger *zap.Logger,
) *Router {
	if config.Auth.Errors == nil {
		config.Auth.Errors = errorHandler
	}
	if config.Auth.Logger == nil {
		config.Auth.Logger = logger
	}
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		config:     config,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	if rt.config.TrustProxyHeaders {
		router.Use(chimiddleware.RealIP)
	}
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.config.Middlewares...)

	origins := rt.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.config.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.config.Metrics)
	}
	if rt.config.Relay != nil {
		router.With(middleware.OptionalAuthenticate(rt.config.Auth)).
			Method(http.MethodGet, "/ws", rt.config.Relay)
	}

	router.Route("/api/mindmaps", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.config.Auth))

		h := handlers.NewDocumentHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
		r.Post("/", h.CreateDocument)
		r.Get("/", h.ListDocuments)
		r.Get("/{id}", h.GetDocument)
		r.Put("/{id}", h.UpdateDocument)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck runs every registered dependency check
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.config.Readiness))
	for name, check := range rt.config.Readiness {
		if err := check(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
