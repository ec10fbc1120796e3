package oidc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"golang.org/x/oauth2"
)

const (
	statePrefix = "oidc:state:"
	stateTTL    = 5 * time.Minute
)

type Provider struct {
	id            string
	name          string
	cfg           config.OIDCConfig
	claimMappings map[string]string
	cache         cache.Cache

	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

func NewProvider(ctx context.Context, providerCfg config.ProviderConfig, cache cache.Cache) (*Provider, error) {
	if providerCfg.OIDC == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}

	provider, err := oidc.NewProvider(ctx, providerCfg.OIDC.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return newProvider(providerCfg, cache, provider.Endpoint(), provider.Verifier(&oidc.Config{
		ClientID: providerCfg.OIDC.ClientID,
	})), nil
}

func newProvider(providerCfg config.ProviderConfig, cache cache.Cache, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *Provider {
	return &Provider{
		id:            providerCfg.ID,
		name:          providerCfg.Name,
		cfg:           *providerCfg.OIDC,
		claimMappings: providerCfg.ClaimMappings,
		cache:         cache,
		oauth2Config: oauth2.Config{
			ClientID:     providerCfg.OIDC.ClientID,
			ClientSecret: providerCfg.OIDC.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       providerCfg.OIDC.Scopes,
		},
		verifier: verifier,
	}
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Type() string {
	return "oidc"
}

// InitiateAuth builds a PKCE authorization URL. The oauth2 config is copied
// per call since the redirect URL varies by request.
func (p *Provider) InitiateAuth(ctx context.Context, callbackURL, returnTo string) (*auth.AuthRedirect, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state := uuid.NewString()

	oauth2Config := p.oauth2Config
	oauth2Config.RedirectURL = callbackURL

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(codeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.cfg.HD != "" {
		opts = append(opts, oauth2.SetAuthURLParam("hd", p.cfg.HD))
	}

	stateData, err := json.Marshal(&auth.OIDCState{
		State:        state,
		ProviderID:   p.id,
		CodeVerifier: codeVerifier,
		RedirectURL:  callbackURL,
		ReturnTo:     returnTo,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	return &auth.AuthRedirect{
		URL:       oauth2Config.AuthCodeURL(state, opts...),
		CacheKey:  statePrefix + state,
		CacheData: stateData,
		CacheTTL:  stateTTL,
	}, nil
}

func (p *Provider) HandleCallback(ctx context.Context, req *http.Request) (*auth.Session, string, error) {
	code := req.URL.Query().Get("code")
	state := req.URL.Query().Get("state")

	if code == "" {
		return nil, "", fmt.Errorf("missing code parameter")
	}
	if state == "" {
		return nil, "", fmt.Errorf("missing state parameter")
	}

	stateData, err := p.cache.Get(ctx, statePrefix+state)
	if err != nil {
		return nil, "", fmt.Errorf("invalid or expired state: %w", err)
	}
	if taken, err := p.cache.Take(ctx, statePrefix+state); err != nil || !taken {
		return nil, "", fmt.Errorf("state already used")
	}

	var oidcState auth.OIDCState
	if err := json.Unmarshal(stateData, &oidcState); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if oidcState.ProviderID != p.id {
		return nil, "", fmt.Errorf("provider mismatch")
	}

	oauth2Config := p.oauth2Config
	oauth2Config.RedirectURL = oidcState.RedirectURL

	oauth2Token, err := oauth2Config.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", oidcState.CodeVerifier),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, "", fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, "", fmt.Errorf("failed to parse claims: %w", err)
	}

	identity, err := auth.IdentityFromClaims(claims, p.claimMappings)
	if err != nil {
		return nil, "", err
	}

	return &auth.Session{
		ProviderID:   p.id,
		ProviderType: p.Type(),
		Identity:     identity,
		Claims:       claims,
	}, oidcState.ReturnTo, nil
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
