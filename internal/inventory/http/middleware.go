package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

// SessionFromContext returns the verified session claims injected by
// AuthnMiddleware. The boolean is false on unauthenticated routes.
func SessionFromContext(ctx context.Context) (service.SessionClaims, bool) {
	claims, ok := ctx.Value(ctxKeySession).(service.SessionClaims)
	return claims, ok
}

// AuthnMiddleware verifies the Bearer session token and injects the session
// claims plus the user id into the request context.
func AuthnMiddleware(sessions *service.SessionSigner) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			claims, err := sessions.Verify(raw)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, claims)
			ctx = context.WithValue(ctx, httpx.CtxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, httpx.CtxKeyUsername, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects sessions whose role carries no elevated rights. It
// must sit after AuthnMiddleware in the chain.
func RequireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}

			switch claims.Role {
			case domain.RoleAdmin:
				next.ServeHTTP(w, r)
			case domain.RoleStandard:
				httpx.WriteError(w, http.StatusForbidden,
					"forbidden", "This operation requires an administrator")
			default:
				writeUnauthorized(w)
			}
		})
	}
}

// loadActor resolves the verified session to its full user record. It fails
// the request itself when the session is missing or the user no longer
// exists, which can happen when a session outlives a restore or clear.
func loadActor(w http.ResponseWriter, r *http.Request, users *service.UserService) (domain.User, bool) {
	claims, ok := SessionFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return domain.User{}, false
	}

	user, err := users.Get(r.Context(), claims.UserID)
	if err != nil {
		writeUnauthorized(w)
		return domain.User{}, false
	}
	return user, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="stocktake"`)
	httpx.WriteError(w, http.StatusUnauthorized,
		"invalid_token", "Missing or invalid session token")
}
