package auth

import (
	"context"
	"net/http"
	"strings"

	"webdiary-server/internal/observability"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims attached by the
// authorization guard.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}

// Guard authorizes requests: it verifies the bearer token and checks
// the actor's role against the route's required role.
type Guard struct {
	codec  *Codec
	logger *observability.Logger
}

func NewGuard(codec *Codec, logger *observability.Logger) *Guard {
	return &Guard{codec: codec, logger: logger}
}

// Require wraps next so it only runs for a valid token whose role
// satisfies required. Token failures yield 401, insufficient role 403.
func (g *Guard) Require(required Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims, err := g.codec.Verify(tokenStr)
		if err != nil {
			// The client gets a uniform rejection; the reason stays in
			// the logs.
			g.logger.Info("token_rejected", map[string]any{
				"reason": err.Error(),
				"path":   r.URL.Path,
				"ip":     clientIP(r),
			})
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if !claims.Role.Satisfies(required) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
