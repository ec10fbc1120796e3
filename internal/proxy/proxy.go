package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/middleware"
	"github.com/marcogenualdo/edge-bridge/internal/usersync"
	"github.com/marcogenualdo/edge-bridge/pkg/security"
)

const backendUnavailable = "Backend unavailable"

type Minter interface {
	Mint(backendUserID string) (string, error)
}

type Syncer interface {
	MaybeSync(ctx context.Context, identity auth.Identity, markerValue string) usersync.Result
}

// Forwarder relays browser API calls mounted under the proxy prefix to the
// backend, presenting a service assertion for the signed-in user.
type Forwarder struct {
	backend      *url.URL
	prefix       string
	maxBodyBytes int64
	cookieSecure bool
	syncCfg      config.SyncConfig

	client *http.Client
	minter Minter
	syncer Syncer
	logger *slog.Logger
}

func NewForwarder(cfg config.Config, client *http.Client, minter Minter, syncer Syncer, logger *slog.Logger) (*Forwarder, error) {
	backendURL, err := url.Parse(cfg.Backend.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	return &Forwarder{
		backend:      backendURL,
		prefix:       cfg.Backend.ProxyPrefix,
		maxBodyBytes: cfg.Backend.MaxBodyBytes,
		cookieSecure: cfg.Server.CookieSecure,
		syncCfg:      cfg.Sync,
		client:       client,
		minter:       minter,
		syncer:       syncer,
		logger:       logger,
	}, nil
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, f.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			writeDetail(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
	}

	var identity auth.Identity
	if session, ok := middleware.GetSession(r.Context()); ok {
		identity = session.Identity
	}

	if identity.UserID != "" {
		marker := security.CookieValue(r, f.syncCfg.MarkerCookie)
		if res := f.syncer.MaybeSync(r.Context(), identity, marker); res.SetMarker {
			http.SetCookie(w, security.CreateMarkerCookie(f.syncCfg, f.cookieSecure, res.Marker))
		}
	}

	outReq, err := f.backendRequest(r, body, identity.UserID)
	if err != nil {
		f.logger.Error("failed to build backend request", "error", err, "path", r.URL.Path)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp, err := f.client.Do(outReq)
	if err != nil {
		if r.Context().Err() != nil {
			f.logger.Debug("client went away before backend responded", "path", r.URL.Path)
			return
		}
		f.logger.Error("backend request failed", "error", err, "path", r.URL.Path)
		writeDetail(w, http.StatusBadGateway, backendUnavailable)
		return
	}
	defer resp.Body.Close()

	mode := classify(resp)
	f.logger.Debug("relaying backend response",
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"mode", mode.String(),
	)

	switch mode {
	case Streaming:
		relayStream(w, resp, f.logger)
	case NoContent:
		relayNoContent(w, resp)
	default:
		relayBuffered(w, resp, f.logger)
	}
}

// backendRequest rewrites r onto the backend. Only Content-Type is carried
// over from the client; cookies and connection headers stay at the edge.
func (f *Forwarder) backendRequest(r *http.Request, body []byte, userID string) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, f.targetURL(r.URL).String(), reader)
	if err != nil {
		return nil, err
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		outReq.Header.Set("Content-Type", ct)
	}

	if userID != "" {
		token, err := f.minter.Mint(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to mint assertion: %w", err)
		}
		outReq.Header.Set("Authorization", "Bearer "+token)
	}

	return outReq, nil
}

func (f *Forwarder) targetURL(in *url.URL) *url.URL {
	target := *f.backend
	base := strings.TrimRight(f.backend.Path, "/")

	target.Path = base + "/" + strings.TrimPrefix(in.Path, f.prefix)
	if in.RawPath != "" {
		target.RawPath = strings.TrimRight(f.backend.EscapedPath(), "/") + "/" + strings.TrimPrefix(in.RawPath, f.prefix)
	} else {
		target.RawPath = ""
	}
	target.RawQuery = in.RawQuery
	target.Fragment = ""

	return &target
}
