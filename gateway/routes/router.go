package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendledger/gateway/middleware"
	"lendledger/services/lending/server"
)

type Config struct {
	Service        *server.Service
	HealthHandler  http.Handler
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	// AdminScopes gate update_interest_rate and the admin mount. Empty selects
	// middleware.DefaultAdminScope.
	AdminScopes    []string
	// Admin serves operator endpoints under /admin/payouts. It is only mounted
	// when the authenticator is enabled.
	Admin          http.Handler
	TraceTransport bool
}

const adminPrefix = "/admin/payouts"

// New assembles the public HTTP surface of the lending daemon.
func New(cfg Config) http.Handler {
	if len(cfg.AdminScopes) == 0 {
		cfg.AdminScopes = []string{middleware.DefaultAdminScope}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Method(http.MethodGet, "/healthz", health)

	obs := cfg.Observability
	if cfg.Service != nil {
		for _, route := range cfg.Service.Routes() {
			r.Method(route.Method, route.Pattern, wrap(cfg, route))
		}
	}

	if cfg.Admin != nil && cfg.Authenticator.Enabled() {
		admin := cfg.Authenticator.Middleware(cfg.AdminScopes...)(http.StripPrefix(adminPrefix, cfg.Admin))
		if obs != nil {
			admin = obs.Middleware("admin_payouts")(admin)
		}
		r.Mount(adminPrefix, admin)
	}

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	if cfg.TraceTransport {
		return otelhttp.NewHandler(r, "lendingd")
	}
	return r
}

// wrap applies the per-route middleware stack. Authentication runs before rate
// limiting so buckets are keyed by subject.
func wrap(cfg Config, route server.Route) http.Handler {
	var handler http.Handler = route.Handler
	if cfg.RateLimiter != nil {
		handler = cfg.RateLimiter.Middleware(route.Name)(handler)
	}
	if cfg.Authenticator != nil && route.Mutating {
		var scopes []string
		if route.Name == "update_interest_rate" {
			scopes = cfg.AdminScopes
		}
		handler = cfg.Authenticator.Middleware(scopes...)(handler)
	}
	if cfg.Observability != nil {
		handler = cfg.Observability.Middleware(route.Name)(handler)
	}
	return handler
}
