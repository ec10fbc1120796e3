package handlers

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/redirect"
	"github.com/marcogenualdo/edge-bridge/pkg/security"
)

// LoginHandler runs identity provider logins that end in a session on this
// origin, optionally continuing into the bridge handshake.
type LoginHandler struct {
	cfg       config.Config
	cache     cache.Cache
	sessions  *auth.SessionStore
	providers map[string]auth.Provider
	gate      *redirect.Gate
	logger    *slog.Logger
}

func NewLoginHandler(cfg config.Config, cache cache.Cache, sessions *auth.SessionStore, providers map[string]auth.Provider, gate *redirect.Gate, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:       cfg,
		cache:     cache,
		sessions:  sessions,
		providers: providers,
		gate:      gate,
		logger:    logger,
	}
}

// Login handles GET /auth/login/{provider}?return_to=<url>.
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	provider, exists := h.providers[providerID]
	if !exists {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}

	returnTo := r.URL.Query().Get("return_to")
	if returnTo != "" && !h.gate.IsAllowed(returnTo) {
		redirectError(w, r, h.cfg.Server.ErrorPath, errInvalidRedirect)
		return
	}

	callbackURL := h.cfg.Server.BaseURL + "/auth/" + provider.Type() + "/" + providerID + "/callback"
	authRedirect, err := provider.InitiateAuth(r.Context(), callbackURL, returnTo)
	if err != nil {
		h.logger.Error("failed to initiate login", "provider", providerID, "error", err)
		redirectError(w, r, h.cfg.Server.ErrorPath, errLoginFailed)
		return
	}

	if err := h.cache.Set(r.Context(), authRedirect.CacheKey, authRedirect.CacheData, authRedirect.CacheTTL); err != nil {
		h.logger.Error("failed to store login state", "provider", providerID, "error", err)
		redirectError(w, r, h.cfg.Server.ErrorPath, errLoginFailed)
		return
	}

	http.Redirect(w, r, authRedirect.URL, http.StatusFound)
}

// HandleCallback completes a login for providerID. OIDC and SAML share it;
// only the route differs.
func (h *LoginHandler) HandleCallback(providerID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, exists := h.providers[providerID]
		if !exists {
			h.logger.Error("provider not found", "provider_id", providerID)
			http.Error(w, "Invalid provider", http.StatusBadRequest)
			return
		}

		session, returnTo, err := provider.HandleCallback(r.Context(), r)
		if err != nil {
			h.logger.Warn("login callback failed", "provider", providerID, "error", err)
			redirectError(w, r, h.cfg.Server.ErrorPath, errLoginFailed)
			return
		}

		ref, err := h.sessions.Create(r.Context(), session)
		if err != nil {
			h.logger.Error("failed to store session", "error", err)
			redirectError(w, r, h.cfg.Server.ErrorPath, errLoginFailed)
			return
		}

		http.SetCookie(w, security.CreateSessionCookie(h.cfg.Server, ref, h.sessions.TTL()))

		h.logger.Info("authentication successful",
			"provider", providerID,
			"provider_type", provider.Type(),
		)

		if returnTo != "" && h.gate.IsAllowed(returnTo) {
			http.Redirect(w, r, "/auth/bridge?return_to="+url.QueryEscape(returnTo), http.StatusFound)
			return
		}
		http.Redirect(w, r, h.cfg.Server.LandingPath, http.StatusFound)
	}
}
