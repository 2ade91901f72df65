package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
	"github.com/MdWarishh/visa-management-backend/internal/security/auth"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
)

// TenantHeader lets an Owner narrow a request to one tenant.
const TenantHeader = "X-Tenant-ID"

type callerContextKey struct{}

// SessionVerifier checks a bearer token.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (domain.PrincipalSummary, error)
}

// TenantChecker confirms that an Owner's target tenant exists.
type TenantChecker interface {
	IsTenant(ctx context.Context, id string) (bool, error)
}

// WithCaller stores the resolved caller on ctx.
func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// CallerFromContext returns the caller set by Authenticate.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(domain.Caller)
	return c, ok
}

// Authenticate resolves the bearer token into a domain.Caller. Requests
// without a valid session are rejected with 401.
func Authenticate(sessions SessionVerifier, tenants TenantChecker, resolver *security.TenancyResolver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}

			p, err := sessions.VerifySession(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrSessionExpired):
					writeError(w, http.StatusUnauthorized, "Session expired, please log in again")
				case errors.Is(err, domain.ErrDisabled):
					writeError(w, http.StatusUnauthorized, "Account is disabled")
				case errors.Is(err, domain.ErrSessionInvalid):
					writeError(w, http.StatusUnauthorized, "Not authorized, invalid token")
				default:
					log.Error("session verification failed", slog.String("error", err.Error()))
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
				return
			}

			target := ""
			if p.Tier == domain.TierOwner {
				target = r.Header.Get(TenantHeader)
				if target != "" {
					ok, err := tenants.IsTenant(r.Context(), target)
					if err != nil {
						log.Error("tenant lookup failed", slog.String("error", err.Error()))
						writeError(w, http.StatusInternalServerError, "Internal server error")
						return
					}
					if !ok {
						writeError(w, http.StatusNotFound, "Tenant not found")
						return
					}
				}
			}

			caller := resolver.Resolve(p, target)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RateLimit rejects requests once the client's bucket is empty.
func RateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("rate limit exceeded", slog.String("client_ip", ip), slog.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags each request with an id, carried into audit records and the
// X-Request-ID response header, and logs completion.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), reqID)))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// CORS honours the configured origins. "*" allows any origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+TenantHeader)
			w.Header().Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the hardening headers every response carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
