package handlers

import "net/http"

var errorMessages = map[string]string{
	errNoSession:       "You are not signed in. Sign in and try again.",
	errInvalidRedirect: "The requested destination is not allowed.",
	errBridgeFailed:    "Your session could not be transferred. Try again.",
	errInvalidToken:    "This sign-in link is invalid or has expired.",
	errLoginFailed:     "Sign-in failed. Try again.",
}

// ErrorPage renders the plain-text page redirect-based failures land on.
// Unknown flags get a generic message and are never echoed.
func ErrorPage(w http.ResponseWriter, r *http.Request) {
	msg, ok := errorMessages[r.URL.Query().Get("error")]
	if !ok {
		msg = "Something went wrong."
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(msg + "\n"))
}
