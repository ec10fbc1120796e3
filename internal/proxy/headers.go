package proxy

import (
	"encoding/json"
	"net/http"
)

// Connection-scoped headers that must not be copied from a buffered backend
// response; the server recomputes framing for the bytes it writes.
var hopByHopHeaders = []string{
	"Transfer-Encoding",
	"Content-Encoding",
	"Content-Length",
	"Connection",
	"Keep-Alive",
}

// copyResponseHeaders copies backend response headers onto dst. Set-Cookie is
// appended so cookies already on dst survive; every other header replaces the
// value dst had.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if key == "Set-Cookie" {
			for _, v := range values {
				dst.Add(key, v)
			}
			continue
		}
		dst[key] = append([]string(nil), values...)
	}
}

func stripHopByHop(h http.Header) {
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
