package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/floorline/api/internal/auth"
	"github.com/floorline/api/internal/enum"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticate accepts a bearer token, or a "token" query parameter for
// websocket upgrades where browsers cannot set headers.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, status, msg := tokenFromRequest(r)
			if tokenStr == "" {
				writeJSON(w, status, map[string]string{"error": msg})
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, int, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if q := r.URL.Query().Get("token"); q != "" {
			return q, 0, ""
		}
		return "", http.StatusUnauthorized, "missing authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", http.StatusUnauthorized, "invalid authorization format"
	}
	return parts[1], 0, ""
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		})
	}
}

// CanAccessTable reports whether the caller may act on the given table.
// Staff roles reach every table; a customer token only reaches its own.
func CanAccessTable(claims *auth.Claims, tableNumber int32) bool {
	if claims == nil {
		return false
	}
	if claims.Role != enum.RoleCustomer {
		return true
	}
	return claims.TableNumber != 0 && claims.TableNumber == tableNumber
}

// IsCustomer reports whether the request comes from a table QR token.
func IsCustomer(ctx context.Context) bool {
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.Role == enum.RoleCustomer
}

func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
