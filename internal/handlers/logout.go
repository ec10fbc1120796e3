package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/middleware"
	"github.com/marcogenualdo/edge-bridge/pkg/security"
)

type LogoutHandler struct {
	cfg      config.Config
	sessions *auth.SessionStore
	csrf     *middleware.CSRFMiddleware
	logger   *slog.Logger
}

func NewLogoutHandler(cfg config.Config, sessions *auth.SessionStore, csrf *middleware.CSRFMiddleware, logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{
		cfg:      cfg,
		sessions: sessions,
		csrf:     csrf,
		logger:   logger,
	}
}

// ServeHTTP handles POST /auth/logout. It is mounted behind CSRF validation.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ref, ok := middleware.GetSessionRef(r.Context()); ok {
		if err := h.sessions.Delete(r.Context(), ref); err != nil {
			h.logger.Warn("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, security.ClearSessionCookie(h.cfg.Server))
	http.SetCookie(w, security.ClearMarkerCookie(h.cfg.Sync, h.cfg.Server.CookieSecure))

	h.logger.Info("user logged out")

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CSRFToken handles GET /auth/csrf.
func (h *LogoutHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.GenerateCSRFToken(r.Context())
	if err != nil {
		h.logger.Error("failed to issue CSRF token", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}
