package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
)

type HealthHandler struct {
	cfg       config.Config
	cache     cache.Cache
	client    *http.Client
	providers map[string]auth.Provider
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg config.Config, cache cache.Cache, client *http.Client, providers map[string]auth.Provider, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		cache:     cache,
		client:    client,
		providers: providers,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Cache     CacheHealth       `json:"cache"`
	Backend   BackendHealth     `json:"backend"`
	Providers map[string]string `json:"providers"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type BackendHealth struct {
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Providers: make(map[string]string),
	}

	response.Cache.Type = h.cfg.Cache.Type
	if err := h.cache.Set(ctx, "health:check", []byte("ok"), time.Minute); err != nil {
		h.logger.Warn("health check: cache unavailable", "error", err)
		response.Cache.Status = "error"
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
		h.cache.Delete(ctx, "health:check")
	}

	response.Backend.Status = "reachable"
	if err := h.pingBackend(ctx); err != nil {
		h.logger.Warn("health check: backend unreachable", "error", err)
		response.Backend.Status = "unreachable"
		response.Status = "degraded"
	}

	for id, provider := range h.providers {
		response.Providers[id] = provider.Name() + " (" + provider.Type() + ")"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

// pingBackend treats any HTTP response as reachable; only transport errors
// count as down.
func (h *HealthHandler) pingBackend(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Backend.URL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
