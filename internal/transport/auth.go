package transport

import (
	"log/slog"
	"net/http"

	"github.com/dungeonmind/coordinator/internal/auth"
)

// AuthMiddleware resolves a bearer token to a user. Requests without a token
// pass through anonymously; a token that does not resolve is rejected.
func AuthMiddleware(resolver auth.IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := auth.BearerToken(header)
			if token == "" {
				writeError(w, r, logger, auth.ErrUnauthorized)
				return
			}
			userID, err := resolver.ResolveUser(r.Context(), token)
			if err != nil || userID == "" {
				logger.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
				writeError(w, r, logger, auth.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserFromContext(r.Context()); !ok {
				writeError(w, r, logger, auth.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
