package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/marcogenualdo/edge-bridge/internal/bridge"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/middleware"
	"github.com/marcogenualdo/edge-bridge/internal/redirect"
	"github.com/marcogenualdo/edge-bridge/pkg/security"
)

const maxEstablishBody = 8 << 10

// BridgeHandler moves a session from this origin to an allowed one. The
// handshake runs on the origin holding the session; the callback and
// EstablishSession run on the origin receiving it.
type BridgeHandler struct {
	cfg    config.Config
	codec  *bridge.Codec
	replay *bridge.ReplayGuard
	gate   *redirect.Gate
	logger *slog.Logger
}

// NewBridgeHandler builds the bridge endpoints. A nil replay guard leaves
// tokens reusable until they expire.
func NewBridgeHandler(cfg config.Config, codec *bridge.Codec, replay *bridge.ReplayGuard, gate *redirect.Gate, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{
		cfg:    cfg,
		codec:  codec,
		replay: replay,
		gate:   gate,
		logger: logger,
	}
}

// Handshake handles GET /auth/bridge?return_to=<url>.
func (h *BridgeHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("return_to")
	if !h.gate.IsAllowed(returnTo) {
		h.logger.Warn("bridge handshake rejected redirect target")
		redirectError(w, r, h.cfg.Server.ErrorPath, errInvalidRedirect)
		return
	}

	ref, ok := middleware.GetSessionRef(r.Context())
	if !ok {
		redirectError(w, r, h.cfg.Server.ErrorPath, errNoSession)
		return
	}

	token, err := h.codec.Encode(ref)
	if err != nil {
		h.logger.Error("failed to mint bridge token", "error", err)
		redirectError(w, r, h.cfg.Server.ErrorPath, errBridgeFailed)
		return
	}

	origin, err := redirect.Origin(returnTo)
	if err != nil {
		redirectError(w, r, h.cfg.Server.ErrorPath, errBridgeFailed)
		return
	}

	target := origin + h.cfg.Bridge.CallbackPath + "?token=" + url.QueryEscape(token)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback handles GET <callback_path>?token=<token>.
func (h *BridgeHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ref, err := h.redeem(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		redirectError(w, r, h.cfg.Server.ErrorPath, errInvalidToken)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(h.cfg.Server, ref, h.cfg.Server.SessionTTL))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, h.cfg.Server.LandingPath, http.StatusFound)
}

type establishRequest struct {
	Token   string `json:"token"`
	Session string `json:"session"`
}

// EstablishSession handles POST /auth/session with {"token"} or {"session"}.
func (h *BridgeHandler) EstablishSession(w http.ResponseWriter, r *http.Request) {
	var req establishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEstablishBody)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var ref string
	switch {
	case req.Token != "":
		var err error
		ref, err = h.redeem(r.Context(), req.Token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
	case req.Session != "":
		if !security.ValidSessionRef(req.Session) {
			writeDetail(w, http.StatusBadRequest, "Invalid session")
			return
		}
		ref = req.Session
	default:
		writeDetail(w, http.StatusBadRequest, "token or session is required")
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(h.cfg.Server, ref, h.cfg.Server.SessionTTL))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// redeem decodes token and, with a replay guard, consumes it. Every failure
// is reported as bridge.ErrInvalidToken.
func (h *BridgeHandler) redeem(ctx context.Context, token string) (string, error) {
	claims, err := h.codec.DecodeClaims(token)
	if err != nil {
		h.logger.Debug("bridge token rejected")
		return "", bridge.ErrInvalidToken
	}

	if h.replay != nil {
		if err := h.replay.Consume(ctx, claims); err != nil {
			if !errors.Is(err, bridge.ErrInvalidToken) {
				h.logger.Error("replay guard unavailable", "error", err)
			} else {
				h.logger.Warn("bridge token replayed")
			}
			return "", bridge.ErrInvalidToken
		}
	}

	if !security.ValidSessionRef(claims.SessionRef) {
		return "", bridge.ErrInvalidToken
	}
	return claims.SessionRef, nil
}
