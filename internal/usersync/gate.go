// Package usersync makes sure the backend knows about a user before the
// first proxied request on their behalf.
package usersync

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
)

// Minter issues the bearer credential presented to the backend.
type Minter interface {
	Mint(backendUserID string) (string, error)
}

// Result reports the outcome of MaybeSync. Marker is the cookie value to set
// when SetMarker is true.
type Result struct {
	Synced    bool
	SetMarker bool
	Marker    string
}

type Gate struct {
	client    *http.Client
	syncURL   string
	minter    Minter
	markerKey []byte
	timeout   time.Duration
	logger    *slog.Logger
}

type syncRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// NewGate builds a sync gate. markerKey keys the marker cookie value so the
// browser can neither read the user id from it nor forge one.
func NewGate(client *http.Client, backendURL, syncPath string, minter Minter, markerKey []byte, timeout time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		client:    client,
		syncURL:   strings.TrimRight(backendURL, "/") + "/" + strings.TrimLeft(syncPath, "/"),
		minter:    minter,
		markerKey: markerKey,
		timeout:   timeout,
		logger:    logger,
	}
}

// Marker returns the cookie-safe marker value for a backend user id.
func (g *Gate) Marker(userID string) string {
	mac := hmac.New(sha256.New, g.markerKey)
	mac.Write([]byte("sync-marker:"))
	mac.Write([]byte(userID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// MaybeSync posts identity to the backend unless markerValue was issued for
// the same user. Failures are logged and reported as not synced; the caller
// forwards the request either way.
func (g *Gate) MaybeSync(ctx context.Context, identity auth.Identity, markerValue string) Result {
	if identity.UserID == "" {
		return Result{}
	}

	marker := g.Marker(identity.UserID)
	if hmac.Equal([]byte(markerValue), []byte(marker)) {
		return Result{}
	}

	if err := g.sync(ctx, identity); err != nil {
		g.logger.Warn("user sync failed", "error", err)
		return Result{}
	}

	g.logger.Debug("user synced")
	return Result{Synced: true, SetMarker: true, Marker: marker}
}

func (g *Gate) sync(ctx context.Context, identity auth.Identity) error {
	token, err := g.minter.Mint(identity.UserID)
	if err != nil {
		return fmt.Errorf("failed to mint assertion: %w", err)
	}

	body, err := json.Marshal(syncRequest{
		UserID:    identity.UserID,
		Name:      identity.Name,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sync request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.syncURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync returned status %d", resp.StatusCode)
	}
	return nil
}
