package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	TenantKey contextKey = "tenant"
	APIKeyKey contextKey = "api_key"
)

// isUnauthenticatedPath: probes and metrics stay open, and webhook
// deliveries authenticate with their HMAC signature instead of a key.
func isUnauthenticatedPath(p string) bool {
	switch p {
	case "/health", "/healthz", "/readyz", "/livez", "/metrics":
		return true
	}
	return strings.HasSuffix(p, "/webhook/github")
}

// APIKeyAuth validates the API key and resolves which tenant it belongs
// to. Keys come from config as tenant -> key; the key may arrive as
// "Authorization: Bearer <key>" or in the X-API-Key header.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isUnauthenticatedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if apiKey == "" {
				apiKey = strings.TrimSpace(r.Header.Get("X-API-Key"))
			}
			if apiKey == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			// Constant-time comparison untuk cegah timing attack
			var tenant string
			for t, key := range validKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					tenant = t
					break
				}
			}
			if tenant == "" {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, tenant)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantFromContext extracts the authenticated tenant, or "".
func GetTenantFromContext(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// RequireValidTenant rejects requests whose URL tenant does not match the
// tenant the API key authenticated as, so one tenant's key cannot read
// another tenant's sessions.
func RequireValidTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUnauthenticatedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		urlTenant := chi.URLParam(r, "tenant")
		if urlTenant != "" {
			if err := ValidateTenantID(urlTenant); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if authTenant := GetTenantFromContext(r.Context()); authTenant != "" && authTenant != urlTenant {
				http.Error(w, "tenant mismatch", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
