package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/middleware"
)

type StatusResponse struct {
	SessionDetected     bool `json:"session_detected"`
	IdentityResolved    bool `json:"identity_resolved"`
	BackendConfigured   bool `json:"backend_configured"`
	AssertionConfigured bool `json:"assertion_configured"`
}

// StatusHandler reports what the forwarder would do for the calling browser.
// Configuration flags are false while development defaults are in use.
type StatusHandler struct {
	backendConfigured   bool
	assertionConfigured bool
}

func NewStatusHandler(cfg config.Config) *StatusHandler {
	return &StatusHandler{
		backendConfigured:   cfg.Backend.URL != "" && cfg.Backend.URL != config.DevBackendURL,
		assertionConfigured: cfg.Assertion.Secret != "" && cfg.Assertion.Secret != config.DevAssertionSecret,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, hasRef := middleware.GetSessionRef(r.Context())
	session, hasSession := middleware.GetSession(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(StatusResponse{
		SessionDetected:     hasRef,
		IdentityResolved:    hasSession && session.Identity.UserID != "",
		BackendConfigured:   h.backendConfigured,
		AssertionConfigured: h.assertionConfigured,
	})
}
