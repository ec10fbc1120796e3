package auth

import (
	"fmt"
	"time"
)

// Identity is the part of a login the backend cares about. Only UserID is
// required for user sync and service assertions.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is the long-lived login a session cookie refers to.
type Session struct {
	ID           string         `json:"id"`
	ProviderID   string         `json:"provider_id"`
	ProviderType string         `json:"provider_type"`
	Identity     Identity       `json:"identity"`
	Claims       map[string]any `json:"claims,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type OIDCState struct {
	State        string    `json:"state"`
	ProviderID   string    `json:"provider_id"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURL  string    `json:"redirect_url"`
	ReturnTo     string    `json:"return_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SAMLRequest struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	ReturnTo   string    `json:"return_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuthRedirect tells the login handler where to send the browser and what
// state to keep until the provider calls back.
type AuthRedirect struct {
	URL       string
	CacheKey  string
	CacheData []byte
	CacheTTL  time.Duration
}

// IdentityFromClaims maps provider claims onto an Identity using mappings of
// identity field to claim name (user_id, name, email, avatar_url).
func IdentityFromClaims(claims map[string]any, mappings map[string]string) (Identity, error) {
	identity := Identity{
		UserID:    claimString(claims, mappings["user_id"]),
		Name:      claimString(claims, mappings["name"]),
		Email:     claimString(claims, mappings["email"]),
		AvatarURL: claimString(claims, mappings["avatar_url"]),
	}
	if identity.UserID == "" {
		return Identity{}, fmt.Errorf("claim %q for user_id is missing", mappings["user_id"])
	}
	return identity, nil
}

func claimString(claims map[string]any, name string) string {
	if name == "" {
		return ""
	}
	switch v := claims[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	case []any:
		if len(v) > 0 {
			return fmt.Sprintf("%v", v[0])
		}
		return ""
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
