package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ai-consultation/billing/internal/billing/handler"
	sharedmw "github.com/ai-consultation/billing/internal/middleware"
	"github.com/ai-consultation/billing/internal/supabase"
)

type TokenVerifier interface {
	Verify(token string) (*supabase.Claims, error)
}

// RequireAuth validates the Supabase access token and populates the user ID
// in context. Requests without a valid token get 401.
func RequireAuth(v TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, true, logger)
}

// OptionalAuth is RequireAuth for endpoints that also accept anonymous
// callers. A token that is present must still be valid. With a nil verifier
// every request passes through anonymously.
func OptionalAuth(v TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, false, logger)
}

func authenticate(v TokenVerifier, required bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sharedmw.BearerToken(r)
			if token == "" || v == nil {
				if required {
					unauthorized(w, "Authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				logger.Warn("rejected access token", "remote", sharedmw.RealIP(r), "error", err)
				unauthorized(w, "Invalid token")
				return
			}

			ctx := handler.WithUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
