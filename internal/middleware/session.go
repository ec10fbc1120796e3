package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/pkg/security"
)

type contextKey string

const (
	SessionRefContextKey contextKey = "session_ref"
	SessionContextKey    contextKey = "session"
)

type SessionStore interface {
	Get(ctx context.Context, ref string) (*auth.Session, error)
}

// SessionLoader attaches the session cookie value and, when it resolves, the
// stored session to the request context. It never rejects a request: routes
// decide for themselves what an anonymous caller gets.
type SessionLoader struct {
	cookieName string
	store      SessionStore
	logger     *slog.Logger
}

func NewSessionLoader(cookieName string, store SessionStore, logger *slog.Logger) *SessionLoader {
	return &SessionLoader{
		cookieName: cookieName,
		store:      store,
		logger:     logger,
	}
}

func (sl *SessionLoader) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := security.CookieValue(r, sl.cookieName)
		if ref == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionRefContextKey, ref)

		session, err := sl.store.Get(ctx, ref)
		switch {
		case err == nil:
			ctx = context.WithValue(ctx, SessionContextKey, session)
		case errors.Is(err, auth.ErrSessionNotFound):
			sl.logger.Debug("session cookie does not resolve", "path", r.URL.Path)
		default:
			sl.logger.Warn("failed to load session", "error", err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionRef returns the raw session cookie value seen on the request.
func GetSessionRef(ctx context.Context) (string, bool) {
	ref, ok := ctx.Value(SessionRefContextKey).(string)
	return ref, ok && ref != ""
}

func GetSession(ctx context.Context) (*auth.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*auth.Session)
	return session, ok
}
