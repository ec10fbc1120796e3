package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Query flags understood by the error page.
const (
	errNoSession       = "no_session"
	errInvalidRedirect = "invalid_redirect"
	errBridgeFailed    = "bridge_failed"
	errInvalidToken    = "invalid_token"
	errLoginFailed     = "login_failed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func redirectError(w http.ResponseWriter, r *http.Request, errorPath, flag string) {
	http.Redirect(w, r, errorPath+"?error="+url.QueryEscape(flag), http.StatusFound)
}
