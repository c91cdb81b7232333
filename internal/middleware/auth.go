package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/tabletap/api/internal/auth"
	"go.uber.org/zap"
)

type ctxKey struct{}

var errNoBearer = errors.New("authorization header must be a bearer token")

// bearer extracts the token from an Authorization header.
func bearer(r *http.Request) (string, error) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errNoBearer
	}
	return strings.TrimSpace(token), nil
}

// Authenticate validates the access token and stores its claims on the
// request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			if err != nil {
				deny(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
				return
			}
			claims, err := auth.ValidateToken(secret, raw)
			if err != nil {
				zap.L().Debug("access token rejected", zap.Error(err), zap.String("path", r.URL.Path))
				deny(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

// RequireRestaurant scopes a request to the restaurant in the caller's
// token. The {rid} path value must name that restaurant.
func RequireRestaurant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			deny(w, http.StatusUnauthorized, "UNAUTHENTICATED", "not authenticated")
			return
		}
		rid, err := uuid.Parse(r.PathValue("rid"))
		if err != nil {
			deny(w, http.StatusBadRequest, "INVALID_RESTAURANT", "restaurant id must be a uuid")
			return
		}
		if rid != claims.RestaurantID {
			deny(w, http.StatusForbidden, "FORBIDDEN", "token is not valid for this restaurant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only callers holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				deny(w, http.StatusUnauthorized, "UNAUTHENTICATED", "not authenticated")
			case !slices.Contains(roles, claims.Role):
				deny(w, http.StatusForbidden, "FORBIDDEN", "role "+claims.Role+" may not do this")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxKey{}).(*auth.Claims)
	return claims
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
