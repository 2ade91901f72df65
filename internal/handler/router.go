package handler

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/middleware"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
	"github.com/MdWarishh/visa-management-backend/internal/service"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Guard          *service.AccountGuard
	Directory      *service.PrincipalDirectory
	Ledger         *service.CandidateLedger
	Resolver       *security.TenancyResolver
	Uploads        UploadStore
	Health         map[string]Checker
	PublicLimiter  *ratelimit.Limiter
	LoginLimiter   *ratelimit.Limiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter wires every route. The returned handler is not yet wrapped with
// tracing; callers add otelhttp on top.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	authH := NewAuthHandler(d.Guard, log)
	candidates := NewCandidateHandler(d.Ledger, d.Uploads, log)
	public := NewPublicHandler(d.Ledger, log)
	accounts := NewAccountHandler(d.Directory, log)
	health := NewHealthHandler(d.Health, log)

	authed := middleware.Authenticate(d.Guard, d.Directory, d.Resolver, log)
	jsonOnly := middleware.RequireJSON(log)
	protect := func(h http.HandlerFunc) http.Handler { return authed(jsonOnly(h)) }
	publicRate := middleware.RateLimit(d.PublicLimiter, log)
	loginRate := middleware.RateLimit(d.LoginLimiter, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/auth/login", loginRate(jsonOnly(http.HandlerFunc(authH.Login))))
	mux.Handle("GET /api/auth/me", protect(authH.Me))
	mux.Handle("POST /api/auth/logout", protect(authH.Logout))
	mux.Handle("POST /api/auth/change-password", protect(authH.ChangePassword))

	mux.Handle("POST /api/public/track", publicRate(jsonOnly(http.HandlerFunc(public.Track))))
	mux.Handle("GET /api/public/download/{id}", publicRate(http.HandlerFunc(public.Download)))

	mux.Handle("GET /api/candidates", protect(candidates.List))
	mux.Handle("POST /api/candidates", protect(candidates.Create))
	mux.Handle("GET /api/candidates/stats", protect(candidates.Stats))
	mux.Handle("GET /api/candidates/export", protect(candidates.Export))
	mux.Handle("GET /api/candidates/{id}", protect(candidates.Get))
	mux.Handle("PATCH /api/candidates/{id}", protect(candidates.Update))
	mux.Handle("DELETE /api/candidates/{id}", protect(candidates.Delete))
	mux.Handle("GET /api/candidates/{id}/download", protect(candidates.Download))
	mux.Handle("POST /api/candidates/{id}/render", protect(candidates.Render))
	mux.Handle("POST /api/candidates/{id}/uploads/{kind}", authed(http.HandlerFunc(candidates.Upload)))

	mux.Handle("GET /api/accounts", protect(accounts.List))
	mux.Handle("POST /api/accounts/admins", protect(accounts.CreateAdmin))
	mux.Handle("POST /api/accounts/users", protect(accounts.CreateUser))
	mux.Handle("GET /api/accounts/{id}", protect(accounts.Get))
	mux.Handle("PATCH /api/accounts/{id}", protect(accounts.Update))
	mux.Handle("DELETE /api/accounts/{id}", protect(accounts.Delete))
	mux.Handle("POST /api/accounts/{id}/toggle", protect(accounts.Toggle))
	mux.Handle("POST /api/accounts/{id}/reset-password", protect(accounts.ResetPassword))

	// request id -> security headers -> CORS -> metrics -> mux
	return middleware.RequestID(log)(
		middleware.SecurityHeaders(
			middleware.CORS(d.AllowedOrigins)(
				metrics.HTTPMetricsMiddleware(mux),
			),
		),
	)
}
