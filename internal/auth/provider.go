package auth

import (
	"context"
	"net/http"
)

type Provider interface {
	ID() string
	Name() string
	Type() string

	// InitiateAuth starts a login whose callback lands on callbackURL.
	// returnTo is carried through the provider round trip untouched.
	InitiateAuth(ctx context.Context, callbackURL, returnTo string) (*AuthRedirect, error)
	// HandleCallback completes a login. The returned session has no ID yet.
	HandleCallback(ctx context.Context, req *http.Request) (*Session, string, error)
}
