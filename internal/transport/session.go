package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/session"
)

// SessionHeader carries the session token for clients without cookies.
const SessionHeader = "X-Session-Id"

type sessionKey struct{}

// SessionIDFromContext returns the resolved session ID from context, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionKey{}).(string)
	return sessionID, ok && sessionID != ""
}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName   string
	CookieSecure bool
	MaxAge       time.Duration
}

// SessionResolver is the part of the session registry the middleware uses.
type SessionResolver interface {
	Resolve(id string) (session.Session, bool)
	BindUser(id, userID string) error
}

// SessionMiddleware resolves the request's session, creating one when the
// token is missing or unknown, binds it to the authenticated user, and
// returns the token as a cookie and a header.
func SessionMiddleware(sessions SessionResolver, opts SessionOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested := r.Header.Get(SessionHeader)
			if requested == "" {
				if c, err := r.Cookie(opts.CookieName); err == nil {
					requested = c.Value
				}
			}

			sess, created := sessions.Resolve(requested)
			if userID, ok := auth.UserFromContext(r.Context()); ok {
				if err := sessions.BindUser(sess.ID, userID); err != nil {
					logger.Warn("session bind refused", "session_id", sess.ID, "user_id", userID, "error", err)
					writeError(w, r, logger, err)
					return
				}
			}
			if created {
				logger.Debug("session started", "session_id", sess.ID)
			}

			http.SetCookie(w, &http.Cookie{
				Name:     opts.CookieName,
				Value:    sess.ID,
				Path:     "/",
				MaxAge:   int(opts.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   opts.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(SessionHeader, sess.ID)

			ctx := context.WithValue(r.Context(), sessionKey{}, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
