package server

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/marcogenualdo/edge-bridge/internal/assertion"
	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/auth/saml"
	"github.com/marcogenualdo/edge-bridge/internal/bridge"
	"github.com/marcogenualdo/edge-bridge/internal/handlers"
	"github.com/marcogenualdo/edge-bridge/internal/middleware"
	"github.com/marcogenualdo/edge-bridge/internal/proxy"
	"github.com/marcogenualdo/edge-bridge/internal/redirect"
	"github.com/marcogenualdo/edge-bridge/internal/usersync"
)

func (s *Server) setupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()

	sessions := auth.NewSessionStore(s.cache, s.cfg.Server.SessionTTL)
	gate := redirect.NewGate(s.cfg.Bridge.AllowedHosts, s.cfg.Bridge.PreviewPatterns)

	codec, err := bridge.NewCodec([]byte(s.cfg.Bridge.Secret), s.cfg.Bridge.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge codec: %w", err)
	}
	var replay *bridge.ReplayGuard
	if s.cfg.SingleUseTokens() {
		replay = bridge.NewReplayGuard(s.cache)
	}

	signer, err := assertion.NewHMACSigner([]byte(s.cfg.Assertion.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create assertion signer: %w", err)
	}
	minter, err := assertion.NewMinter(signer, s.cfg.Assertion.Issuer, s.cfg.Assertion.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create assertion minter: %w", err)
	}

	backendClient := proxy.NewBackendClient(s.cfg.Backend.Timeout)
	syncGate := usersync.NewGate(backendClient, s.cfg.Backend.URL, s.cfg.Backend.SyncPath, minter, []byte(s.cfg.Assertion.Secret), s.cfg.Backend.Timeout, s.logger)

	forwarder, err := proxy.NewForwarder(s.cfg, backendClient, minter, syncGate, s.logger)
	if err != nil {
		return nil, err
	}

	sessionLoader := middleware.NewSessionLoader(s.cfg.Server.CookieName, sessions, s.logger)
	csrfMiddleware := middleware.NewCSRFMiddleware(s.cache, s.logger)

	bridgeHandler := handlers.NewBridgeHandler(s.cfg, codec, replay, gate, s.logger)
	loginHandler := handlers.NewLoginHandler(s.cfg, s.cache, sessions, s.providers, gate, s.logger)
	logoutHandler := handlers.NewLogoutHandler(s.cfg, sessions, csrfMiddleware, s.logger)
	healthHandler := handlers.NewHealthHandler(s.cfg, s.cache, backendClient, s.providers, s.logger)

	mux.HandleFunc("GET /auth/bridge", bridgeHandler.Handshake)
	mux.HandleFunc("GET "+s.cfg.Bridge.CallbackPath, bridgeHandler.Callback)
	mux.HandleFunc("POST /auth/session", bridgeHandler.EstablishSession)
	mux.HandleFunc("GET /auth/csrf", logoutHandler.CSRFToken)
	mux.Handle("/auth/logout", csrfMiddleware.ValidateCSRF(logoutHandler))
	mux.HandleFunc("GET "+s.cfg.Server.ErrorPath, handlers.ErrorPage)
	mux.HandleFunc("GET /auth/login/{provider}", loginHandler.Login)

	for id, provider := range s.providers {
		switch provider.Type() {
		case "oidc":
			mux.HandleFunc("GET /auth/oidc/"+id+"/callback", loginHandler.HandleCallback(id))

		case "saml":
			mux.HandleFunc("POST /auth/saml/"+id+"/acs", loginHandler.HandleCallback(id))

			if samlProvider, ok := provider.(*saml.Provider); ok {
				mux.HandleFunc("GET /auth/saml/"+id+"/metadata", func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/samlmetadata+xml")
					if err := xml.NewEncoder(w).Encode(samlProvider.Metadata()); err != nil {
						s.logger.Error("failed to encode SAML metadata", "provider", id, "error", err)
					}
				})
			}
		}
	}

	mux.HandleFunc("GET /health", healthHandler.ServeHTTP)

	mux.Handle("GET "+s.cfg.Backend.ProxyPrefix+"_status", proxy.NewStatusHandler(s.cfg))
	mux.Handle(s.cfg.Backend.ProxyPrefix, forwarder)

	handler := middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			s.addSecurityHeaders(
				sessionLoader.LoadSession(mux),
			),
		),
	)

	return handler, nil
}

func (s *Server) addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Server.CookieSecure {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
