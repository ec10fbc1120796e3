package proxy

import (
	"net/http"
	"time"
)

// NewBackendClient returns the client used for forwarded calls and user sync.
// Only the wait for response headers is bounded, so a streamed body may run
// for as long as the backend keeps it open. Backend redirects are handed back
// to the browser rather than followed.
func NewBackendClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	transport.MaxIdleConnsPerHost = 32

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
