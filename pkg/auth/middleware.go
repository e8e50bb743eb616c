package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and stores claims and token in the context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	}
}

// RequireAdmin is RequireAuth followed by RequireRole(role).
func (m *Middleware) RequireAdmin(role string) func(http.HandlerFunc) http.HandlerFunc {
	gate := RequireRole(role)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(gate(func(w http.ResponseWriter, r *http.Request) {
			m.logger.Debug("Admin request",
				zap.String("user", GetUserLabel(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			next(w, r)
		}))
	}
}

// RequireRole allows the request through when the claims in context carry
// any of roles. It must run after RequireAuth.
func RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok || claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !claims.HasRole(roles...) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
