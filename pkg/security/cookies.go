package security

import (
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/config"
)

// Cookies set by edge-bridge carry no Domain attribute, so browsers scope them
// to the exact host that set them.

func sameSiteMode(mode string) http.SameSite {
	if strings.ToLower(mode) == "strict" {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func CreateSessionCookie(cfg config.ServerConfig, sessionRef string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    sessionRef,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   cfg.CookieSecure,
		HttpOnly: true,
		SameSite: sameSiteMode(cfg.CookieSameSite),
	}
}

func ClearSessionCookie(cfg config.ServerConfig) *http.Cookie {
	cookie := CreateSessionCookie(cfg, "", 0)
	cookie.MaxAge = -1
	return cookie
}

// CreateMarkerCookie records which backend user was last synced from this
// browser. value must already be cookie-safe.
func CreateMarkerCookie(cfg config.SyncConfig, secure bool, value string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.MarkerCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cfg.MarkerTTL.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func ClearMarkerCookie(cfg config.SyncConfig, secure bool) *http.Cookie {
	cookie := CreateMarkerCookie(cfg, secure, "")
	cookie.MaxAge = -1
	return cookie
}

// CookieValue returns the named cookie's value or "" when absent.
func CookieValue(req *http.Request, name string) string {
	cookie, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ValidSessionRef reports whether ref can be stored verbatim as a cookie
// value: non-empty, bounded and free of separators and control characters.
func ValidSessionRef(ref string) bool {
	if ref == "" || len(ref) > 512 {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if c <= ' ' || c >= 0x7f || c == '"' || c == ',' || c == ';' || c == '\\' {
			return false
		}
	}
	return true
}
