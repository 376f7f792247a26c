package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

type contextKeyAuth string

const (
	apiKeyPrincipalKey contextKeyAuth = "api_key_principal"
	adminPrincipalKey  contextKeyAuth = "admin_principal"
)

// APIKeyHeader is the alternative to an Authorization bearer API key.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey authenticates dataset readers. The key is read from
// "Authorization: Bearer <key>" or, failing that, from X-API-Key. A missing,
// unknown or revoked key is answered with 401.
func RequireAPIKey(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = r.Header.Get(APIKeyHeader)
			}
			if raw == "" {
				WriteError(w, http.StatusUnauthorized, "API key required. Provide an Authorization: Bearer header or X-API-Key.")
				return
			}

			p, err := authSvc.ValidateAPIKey(r.Context(), raw)
			if err != nil {
				msg := "Invalid API key"
				if errors.Is(err, service.ErrKeyRevoked) {
					msg = "API key has been revoked"
				}
				WriteError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin authenticates management requests with an admin session
// token.
func RequireAdmin(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer session token.")
				return
			}

			p, err := authSvc.ValidateJWT(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenExpired):
					WriteError(w, http.StatusUnauthorized, "Session expired")
				case errors.Is(err, service.ErrTokenRevoked):
					WriteError(w, http.StatusUnauthorized, "Session has been logged out")
				default:
					WriteError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), adminPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperAdmin rejects admins without the super admin flag. It must
// run after RequireAdmin.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetAdmin(r.Context())
			if p == nil || !p.IsSuperAdmin {
				WriteError(w, http.StatusForbidden, "Super admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAPIKey returns the API key principal of the request, or nil.
func GetAPIKey(ctx context.Context) *service.APIKeyPrincipal {
	if p, ok := ctx.Value(apiKeyPrincipalKey).(*service.APIKeyPrincipal); ok {
		return p
	}
	return nil
}

// GetAdmin returns the admin principal of the request, or nil.
func GetAdmin(ctx context.Context) *service.JWTPrincipal {
	if p, ok := ctx.Value(adminPrincipalKey).(*service.JWTPrincipal); ok {
		return p
	}
	return nil
}

// WithAPIKey attaches an API key principal to ctx.
func WithAPIKey(ctx context.Context, p *service.APIKeyPrincipal) context.Context {
	return context.WithValue(ctx, apiKeyPrincipalKey, p)
}

// WithAdmin attaches an admin principal to ctx.
func WithAdmin(ctx context.Context, p *service.JWTPrincipal) context.Context {
	return context.WithValue(ctx, adminPrincipalKey, p)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: message})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
