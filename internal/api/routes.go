package api

import (
	"net/http"
	"time"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// AdminScope keeps admin traffic on its own counters.
const AdminScope = "admin"

// AdminMutateLimit is the admin mutation budget per IP.
var AdminMutateLimit = ratelimit.Config{Window: time.Minute, MaxRequests: 10}

// Session responses may be reused briefly by the caller's own client.
const (
	sessionMaxAge = 30 * time.Second
	sessionSWR    = 60 * time.Second
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API. Everything under
// /api/v1 except health goes through the admission pipeline.
func SetupRoutes(handlers *Handlers, pipeline *admission.Pipeline, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api.Handle("/session", pipeline.Wrap(handlers.Session,
		admission.WithCache(sessionMaxAge, sessionSWR))).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	adminRead := []admission.RouteOption{admission.WithScope(AdminScope)}
	adminWrite := []admission.RouteOption{admission.WithScope(AdminScope), admission.WithRateLimit(AdminMutateLimit)}

	admin.Handle("/blocks/{ip}", pipeline.Wrap(handlers.GetBlock, adminRead...)).Methods("GET")
	admin.Handle("/blocks", pipeline.Wrap(handlers.CreateBlock, adminWrite...)).Methods("POST")
	admin.Handle("/blocks/{ip}", pipeline.Wrap(handlers.DeleteBlock, adminWrite...)).Methods("DELETE")
	admin.Handle("/suspensions/{user_id}", pipeline.Wrap(handlers.GetSuspension, adminRead...)).Methods("GET")
	admin.Handle("/suspensions", pipeline.Wrap(handlers.CreateSuspension, adminWrite...)).Methods("POST")
	admin.Handle("/suspensions/{user_id}", pipeline.Wrap(handlers.DeleteSuspension, adminWrite...)).Methods("DELETE")

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	// Subrouters answer their own misses; the root handlers never see them.
	for _, r := range []*mux.Router{router, api, admin} {
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
		r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	}

	return router
}
