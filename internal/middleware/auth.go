package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"auth-service/internal/access"
	"auth-service/internal/model"
)

// AccessTokenCookie is read when no usable Authorization header is present.
const AccessTokenCookie = "accessToken"

type tokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	verifier tokenVerifier
}

func NewAuthMiddleware(verifier tokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth verifies the bearer credential and stores the Identity on the
// request context. The Authorization header wins over the cookie.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		identity, err := m.verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, model.ErrConfiguration) {
				slog.Error("access token verification misconfigured", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRoles admits only identities whose role is one of roles. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	required := access.Roles(roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())

			if err := access.Authorize(required, identity); err != nil {
				if errors.Is(err, model.ErrUnauthenticated) {
					writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
					return
				}
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken returns the bearer token from the Authorization header, or the
// accessToken cookie when the header is absent or carries a placeholder.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); !isPlaceholder(token) {
			return token
		}
	}

	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	if token := strings.TrimSpace(cookie.Value); !isPlaceholder(token) {
		return token
	}
	return ""
}

func isPlaceholder(token string) bool {
	switch token {
	case "", "undefined", "null":
		return true
	default:
		return false
	}
}

func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	return identity, ok && identity != nil
}
