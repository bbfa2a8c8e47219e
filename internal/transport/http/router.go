package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consentire/internal/audit"
	"consentire/internal/auth"
	"consentire/internal/compliance"
	consentservice "consentire/internal/consent/service"
	"consentire/internal/governance"
	"consentire/internal/platform/middleware"
	"consentire/internal/registry"
	"consentire/internal/transport/http/json"
	"consentire/internal/user"
)

// HealthChecker reports the readiness of one dependency.
type HealthChecker func(ctx context.Context) error

// Deps collects everything the router needs. Keeping them in one struct keeps
// main's wiring readable.
type Deps struct {
	Logger     *slog.Logger
	Tokens     *auth.TokenService
	Users      *user.Service
	Registry   *registry.Service
	Consent    *consentservice.Service
	Compliance *compliance.Service
	Governance *governance.Service
	AuditTrail audit.Store

	RequestTimeout time.Duration
	Health         map[string]HealthChecker
}

// NewRouter wires all endpoints with the shared middleware stack.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.ClientInfo)

	users := NewUserHandler(d.Users, d.Tokens, d.Logger)
	controllers := NewControllerHandler(d.Registry, d.Compliance, d.Tokens, d.Logger)
	consents := NewConsentHandler(d.Consent, d.AuditTrail, d.Logger)
	gov := NewGovernanceHandler(d.Governance, d.Logger)

	// Public endpoints.
	users.Register(r)
	controllers.Register(r)
	r.Get("/health", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints. The token role decides what the principal may
	// reach; handlers additionally check which role is present.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Tokens, d.Logger))
		consents.RegisterUser(r)
		consents.RegisterController(r)
		controllers.RegisterAuthenticated(r)
		gov.Register(r)
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		body := map[string]any{"status": "ok", "components": components}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		json.WriteJSON(w, status, body)
	}
}
